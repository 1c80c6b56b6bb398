// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package composite

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind is the type of a composite artifact. Its value is the file
// extension of artifact names.
type Kind string

const (
	// JavaScript artifacts combine script files.
	JavaScript Kind = "js"
	// CSS artifacts combine style sheets.
	CSS Kind = "css"
)

// ParseKind returns the Kind named by s, which is either an extension
// ("js", "css") or a long form ("javascript").
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "js", "javascript":
		return JavaScript, true
	case "css":
		return CSS, true
	}
	return "", false
}

// NewFileName returns a fresh artifact name of the form
// {version}-{random hex}.{ext}. Path maps the version to a directory.
func NewFileName(version int, kind Kind) string {
	id := strings.Replace(uuid.New().String(), "-", "", -1)
	return strconv.Itoa(version) + "-" + id + "." + string(kind)
}
