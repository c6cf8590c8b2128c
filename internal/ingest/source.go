package ingest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Item is one file offered by a Source. Name is relative to the source
// root and uses forward slashes.
type Item struct {
	Name string
	Body io.Reader
}

// Folder is the directory that directly contains the item, or "" at the
// source root.
func (i Item) Folder() string {
	dir := path.Dir(i.Name)
	if dir == "." || dir == "/" {
		return ""
	}
	return path.Base(dir)
}

// Source enumerates ingestible files. fn must not retain Body after it
// returns.
type Source interface {
	Walk(ctx context.Context, fn func(Item) error) error
}

// DirSource walks a local directory tree.
type DirSource struct {
	Root string
}

func (d DirSource) Walk(ctx context.Context, fn func(Item) error) error {
	return filepath.WalkDir(d.Root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("ingest: open %s: %w", p, err)
		}
		defer f.Close()
		return fn(Item{Name: filepath.ToSlash(rel), Body: f})
	})
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads every object under a bucket prefix, or a single key.
type S3Source struct {
	Client S3API
	Bucket string
	Prefix string
	// Keys, when set, limits the walk to these objects.
	Keys []string
}

func (s S3Source) Walk(ctx context.Context, fn func(Item) error) error {
	if s.Client == nil || s.Bucket == "" {
		return fmt.Errorf("ingest: s3 source requires a client and bucket")
	}
	if len(s.Keys) > 0 {
		for _, key := range s.Keys {
			if err := s.visit(ctx, key, fn); err != nil {
				return err
			}
		}
		return nil
	}

	paginator := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("ingest: list s3://%s/%s: %w", s.Bucket, s.Prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			if err := s.visit(ctx, key, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s S3Source) visit(ctx context.Context, key string, fn func(Item) error) error {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("ingest: get s3://%s/%s: %w", s.Bucket, key, err)
	}
	defer out.Body.Close()

	name := strings.TrimPrefix(strings.TrimPrefix(key, s.Prefix), "/")
	if name == "" {
		name = path.Base(key)
	}
	return fn(Item{Name: name, Body: out.Body})
}
