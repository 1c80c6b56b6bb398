// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dydbassoc implements an assoc.Assoc based on AWS's
// DynamoDB.
package dydbassoc

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/bundlecache/errors"
	"github.com/grailbio/bundlecache/log"
)

// Assoc implements a DynamoDB-backed Assoc. Each association entry is
// represented by a DynamoDB item with the string attributes "ID" and
// "Value". Items also carry "LastAccessTime" (updated on every read
// and write) and "AccessCount" attributes, which an external job may
// use to evict entries that are no longer in use.
type Assoc struct {
	DB dynamodbiface.DynamoDBAPI
	// Limiter, if non-nil, bounds the number of concurrent requests.
	Limiter   *limiter.Limiter
	TableName string
	// Log receives errors from best-effort access time updates.
	Log *log.Logger
}

func (a *Assoc) acquire(ctx context.Context) error {
	if a.Limiter == nil {
		return nil
	}
	return a.Limiter.Acquire(ctx, 1)
}

func (a *Assoc) release() {
	if a.Limiter != nil {
		a.Limiter.Release(1)
	}
}

// Put associates the value v with the key k in the dynamodb table.
// DynamoDB condtional expressions are used to implement
// compare-and-swap when expect is non-nil.
func (a *Assoc) Put(ctx context.Context, k string, expect, v []byte) error {
	if err := a.acquire(ctx); err != nil {
		return errors.E("dydbassoc.put", k, err)
	}
	defer a.release()
	var (
		conditionExpression       *string
		expressionAttributeNames  map[string]*string
		expressionAttributeValues map[string]*dynamodb.AttributeValue
	)
	switch {
	case expect == nil:
	case len(expect) == 0:
		conditionExpression = aws.String("attribute_not_exists(ID)")
	default:
		conditionExpression = aws.String("#value = :expect")
		expressionAttributeNames = map[string]*string{"#value": aws.String("Value")}
		expressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":expect": {S: aws.String(string(expect))},
		}
	}
	_, err := a.DB.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		ConditionExpression:       conditionExpression,
		ExpressionAttributeNames:  expressionAttributeNames,
		ExpressionAttributeValues: expressionAttributeValues,
		Item: map[string]*dynamodb.AttributeValue{
			"ID": {
				S: aws.String(k),
			},
			"Value": {
				S: aws.String(string(v)),
			},
			"LastAccessTime": {
				N: aws.String(fmt.Sprint(time.Now().Unix())),
			},
		},
		TableName: aws.String(a.TableName),
	})
	if err != nil {
		return errors.E("dydbassoc.put", k, kind(err), err)
	}
	return nil
}

// Get returns the value associated with key k. Get returns an error
// flagged errors.NotExist when no such mapping exists. Get also
// modifies the item's last-accessed time, which can be used for LRU
// garbage collection.
func (a *Assoc) Get(ctx context.Context, k string) ([]byte, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, errors.E("dydbassoc.get", k, err)
	}
	defer a.release()
	resp, err := a.DB.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {
				S: aws.String(k),
			},
		},
		TableName:      aws.String(a.TableName),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.E("dydbassoc.get", k, kind(err), err)
	}
	item := resp.Item["Value"]
	if item == nil || item.S == nil {
		return nil, errors.E("dydbassoc.get", k, errors.NotExist)
	}
	_, err = a.DB.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {
				S: aws.String(k),
			},
		},
		TableName:        aws.String(a.TableName),
		UpdateExpression: aws.String("SET LastAccessTime = :time ADD AccessCount :one"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":time": {N: aws.String(fmt.Sprint(time.Now().Unix()))},
			":one":  {N: aws.String("1")},
		},
	})
	if err != nil && err != ctx.Err() {
		aerr, ok := err.(awserr.Error)
		// The AWS SDK overrides context cancellation with its own
		// error code.
		if !ok || aerr.Code() != request.CanceledErrorCode {
			a.Log.Errorf("dynamodb: update %v: %v", k, err)
		}
	}
	return []byte(*item.S), nil
}

// kind interprets a DynamoDB API error into an error kind.
func kind(err error) errors.Kind {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return errors.Other
	}
	switch aerr.Code() {
	case dynamodb.ErrCodeConditionalCheckFailedException:
		return errors.Precondition
	case dynamodb.ErrCodeResourceNotFoundException:
		return errors.NotExist
	case dynamodb.ErrCodeProvisionedThroughputExceededException, "ThrottlingException":
		return errors.ResourcesExhausted
	case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
		return errors.NotAllowed
	case "ValidationException":
		return errors.Invalid
	case dynamodb.ErrCodeInternalServerError, "ServiceUnavailable":
		return errors.Unavailable
	case request.CanceledErrorCode:
		return errors.Canceled
	}
	return errors.Other
}
