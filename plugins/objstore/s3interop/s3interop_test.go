// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package s3interop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]bool
	copies  map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodHead:
		if !f.objects[key] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", "Mon, 05 Oct 2026 10:00:00 GMT")
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		src := strings.TrimPrefix(r.Header.Get("X-Amz-Copy-Source"), "/")
		f.copies[key] = src
		f.objects[key] = true
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
			`<CopyObjectResult><LastModified>2026-10-05T10:00:00.000Z</LastModified>` +
			`<ETag>"d41d8cd98f00b204e9800998ecf8427e"</ETag></CopyObjectResult>`))
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newTestStore(t *testing.T, fake *fakeS3) *Store {
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := New(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "GOOG1EXAMPLE",
		SecretKey: "secret",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return s
}

func TestExists(t *testing.T) {
	fake := &fakeS3{objects: map[string]bool{"inputs/S1_R1.fq.gz": true}}
	s := newTestStore(t, fake)

	ok, err := s.Exists(context.Background(), "gs://inputs/S1_R1.fq.gz")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(context.Background(), "gs://inputs/S1_R2.fq.gz")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Exists(context.Background(), "s3://inputs/S1_R1.fq.gz")
	assert.Error(t, err)
}

func TestCopyKeepsBaseName(t *testing.T) {
	fake := &fakeS3{
		objects: map[string]bool{"inputs/run1/S1_R1.fq.gz": true},
		copies:  map[string]string{},
	}
	s := newTestStore(t, fake)

	require.NoError(t, s.Copy(context.Background(), "gs://inputs/run1/S1_R1.fq.gz", "gs://results/job/data/"))
	assert.Equal(t, "inputs/run1/S1_R1.fq.gz", fake.copies["results/job/data/S1_R1.fq.gz"])
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		EnvAccessKey: "GOOG1EXAMPLE",
		EnvSecretKey: "secret",
	}
	cfg, err := ConfigFromEnv(func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.True(t, cfg.UseSSL)
	assert.Equal(t, "auto", cfg.Region)

	env[EnvEndpoint] = "https://storage.googleapis.com"
	_, err = ConfigFromEnv(func(k string) string { return env[k] })
	assert.ErrorContains(t, err, "scheme")

	delete(env, EnvEndpoint)
	delete(env, EnvSecretKey)
	_, err = ConfigFromEnv(func(k string) string { return env[k] })
	assert.ErrorContains(t, err, EnvSecretKey)

	env[EnvSecretKey] = "secret"
	env[EnvUseSSL] = "maybe"
	_, err = ConfigFromEnv(func(k string) string { return env[k] })
	assert.Error(t, err)
}
