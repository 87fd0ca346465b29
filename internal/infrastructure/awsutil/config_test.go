package awsutil

import (
	"context"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	if _, err := LoadConfig(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for missing region")
	}

	cfg, err := LoadConfig(context.Background(), Options{
		Region:          "eu-west-1",
		Endpoint:        "http://localhost:4566",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Fatalf("unexpected region %q", cfg.Region)
	}
	if cfg.BaseEndpoint == nil || *cfg.BaseEndpoint != "http://localhost:4566" {
		t.Fatalf("unexpected endpoint %v", cfg.BaseEndpoint)
	}

	creds, err := cfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if creds.AccessKeyID != "test" {
		t.Fatalf("expected static credentials, got %q", creds.AccessKeyID)
	}
}
