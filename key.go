// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bundlecache

import (
	"strconv"
	"strings"
)

// KeySeparator separates dependent file paths in a key's preimage.
const KeySeparator = ";"

// Key returns the file key for the provided dependent files and
// version. The paths are joined in the order given, so callers that
// want order-independent keys must canonicalize the order first.
// Key never fails; an empty file list yields a valid key.
func Key(files []string, version int) string {
	combined := strings.TrimRight(strings.Join(files, KeySeparator), KeySeparator)
	return Digester.FromString(combined + strconv.Itoa(version)).Hex()
}
