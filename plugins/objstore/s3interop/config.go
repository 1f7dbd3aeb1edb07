// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package s3interop

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvEndpoint  = "CHIPSAUTO_S3_ENDPOINT"
	EnvAccessKey = "CHIPSAUTO_S3_ACCESS_KEY"
	EnvSecretKey = "CHIPSAUTO_S3_SECRET_KEY"
	EnvRegion    = "CHIPSAUTO_S3_REGION"
	EnvUseSSL    = "CHIPSAUTO_S3_USE_SSL"
)

// DefaultEndpoint is the S3 interoperability endpoint of Cloud Storage.
const DefaultEndpoint = "storage.googleapis.com"

// Config holds the HMAC credentials and endpoint of the interoperability API.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// ConfigFromEnv builds a Config from the CHIPSAUTO_S3_* variables, looked up
// through getenv.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	lookup := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	useSSL, err := strconv.ParseBool(lookup(EnvUseSSL, "true"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", EnvUseSSL, err)
	}
	cfg := Config{
		Endpoint:  lookup(EnvEndpoint, DefaultEndpoint),
		AccessKey: lookup(EnvAccessKey, ""),
		SecretKey: lookup(EnvSecretKey, ""),
		Region:    lookup(EnvRegion, "auto"),
		UseSSL:    useSSL,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be used to build a client.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return fmt.Errorf("access key is required (%s)", EnvAccessKey)
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("secret key is required (%s)", EnvSecretKey)
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	return nil
}
