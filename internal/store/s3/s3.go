// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package s3 stores generations in an S3 bucket. The object layout is
//
//	<prefix>/<generation>/.generation          marker, so empty generations list
//	<prefix>/<generation>/<base64url(key)>.json one entry
//
// Keys are encoded reversibly so listing a generation never needs a GET.
package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/apex/log"
	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/staranto/shellcache/internal/store"
)

const (
	markerName  = ".generation"
	entrySuffix = ".json"

	// DeleteObjects accepts at most this many keys per call.
	deleteBatch = 1000
)

// API is the subset of *s3.Client used by Storage.
type API interface {
	GetObject(ctx context.Context, params *s3v2.GetObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3v2.PutObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3v2.HeadObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3v2.ListObjectsV2Input, optFns ...func(*s3v2.Options)) (*s3v2.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3v2.DeleteObjectsInput, optFns ...func(*s3v2.Options)) (*s3v2.DeleteObjectsOutput, error)
}

// Storage keeps generations under Prefix in Bucket.
type Storage struct {
	client API
	bucket string
	prefix string
}

var _ store.Storage = (*Storage)(nil)

// New returns a Storage. prefix may be empty.
func New(client API, bucket, prefix string) (*Storage, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	return &Storage{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *Storage) genPrefix(name string) string {
	if s.prefix == "" {
		return name + "/"
	}
	return s.prefix + "/" + name + "/"
}

func (s *Storage) rootPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *Storage) Open(ctx context.Context, name string) (store.Cache, error) {
	if err := store.ValidName(name); err != nil {
		return nil, err
	}
	_, err := s.client.PutObject(ctx, &s3v2.PutObjectInput{
		Bucket: awsv2.String(s.bucket),
		Key:    awsv2.String(s.genPrefix(name) + markerName),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generation %s: %w", name, err)
	}
	return &cache{s: s, name: name}, nil
}

func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	if store.ValidName(name) != nil {
		return false, nil
	}
	_, err := s.client.HeadObject(ctx, &s3v2.HeadObjectInput{
		Bucket: awsv2.String(s.bucket),
		Key:    awsv2.String(s.genPrefix(name) + markerName),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up generation %s: %w", name, err)
	}
	return true, nil
}

func (s *Storage) Names(ctx context.Context) ([]string, error) {
	var names []string
	p := s3v2.NewListObjectsV2Paginator(s.client, &s3v2.ListObjectsV2Input{
		Bucket:    awsv2.String(s.bucket),
		Prefix:    awsv2.String(s.rootPrefix()),
		Delimiter: awsv2.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list generations: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(awsv2.ToString(cp.Prefix), s.rootPrefix()), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	objects, err := s.list(ctx, s.genPrefix(name))
	if err != nil {
		return false, err
	}
	if len(objects) == 0 {
		return false, nil
	}

	for start := 0; start < len(objects); start += deleteBatch {
		end := min(start+deleteBatch, len(objects))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range objects[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: awsv2.String(k)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3v2.DeleteObjectsInput{
			Bucket: awsv2.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: awsv2.Bool(true)},
		})
		if err != nil {
			return false, fmt.Errorf("failed to delete generation %s: %w", name, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return false, fmt.Errorf("failed to delete %s: %s", awsv2.ToString(e.Key), awsv2.ToString(e.Message))
		}
	}
	log.Debugf("deleted %d objects of generation %s", len(objects), name)
	return true, nil
}

func (s *Storage) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3v2.NewListObjectsV2Paginator(s.client, &s3v2.ListObjectsV2Input{
		Bucket: awsv2.String(s.bucket),
		Prefix: awsv2.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, awsv2.ToString(obj.Key))
		}
	}
	return keys, nil
}

type cache struct {
	s    *Storage
	name string
}

func (c *cache) Name() string { return c.name }

func (c *cache) objectKey(key store.Key) string {
	return c.s.genPrefix(c.name) + encodeKey(key) + entrySuffix
}

func (c *cache) Match(ctx context.Context, key store.Key) (store.Entry, error) {
	out, err := c.s.client.GetObject(ctx, &s3v2.GetObjectInput{
		Bucket: awsv2.String(c.s.bucket),
		Key:    awsv2.String(c.objectKey(key)),
	})
	if isNotFound(err) {
		return store.Entry{}, store.ErrNotFound
	}
	if err != nil {
		return store.Entry{}, fmt.Errorf("failed to get S3 object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return store.Entry{}, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	var e store.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return store.Entry{}, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return e, nil
}

func (c *cache) Put(ctx context.Context, key store.Key, entry store.Entry) error {
	entry.Method, entry.URL = key.Method, key.URL
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	_, err = c.s.client.PutObject(ctx, &s3v2.PutObjectInput{
		Bucket:      awsv2.String(c.s.bucket),
		Key:         awsv2.String(c.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: awsv2.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put S3 object: %w", err)
	}
	return nil
}

func (c *cache) Keys(ctx context.Context) ([]store.Key, error) {
	objects, err := c.s.list(ctx, c.s.genPrefix(c.name))
	if err != nil {
		return nil, err
	}
	keys := make([]store.Key, 0, len(objects))
	for _, o := range objects {
		base := path.Base(o)
		if base == markerName || !strings.HasSuffix(base, entrySuffix) {
			continue
		}
		k, err := decodeKey(strings.TrimSuffix(base, entrySuffix))
		if err != nil {
			log.WithError(err).Debugf("skipping foreign object %s", o)
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func encodeKey(k store.Key) string {
	return base64.RawURLEncoding.EncodeToString([]byte(k.String()))
}

func decodeKey(s string) (store.Key, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return store.Key{}, err
	}
	return store.ParseKey(string(b))
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
