package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func TestSignUploadSuccess(t *testing.T) {
	signer := &fakeSigner{email: "uploader@nirvana.iam.gserviceaccount.com"}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	res, err := client.SignUpload(context.Background(), UploadRequest{
		Bucket:              "nirvana-images",
		Object:              "catalog/product/01HX/lock.png",
		ContentType:         "IMAGE/PNG",
		Size:                2048,
		MaxSize:             1 << 20,
		AllowedContentTypes: []string{"image/png", "image/webp"},
		ExpiresIn:           10 * time.Minute,
		CacheControl:        "public, max-age=31536000",
	})
	if err != nil {
		t.Fatalf("SignUpload returned error: %v", err)
	}

	if res.Method != "PUT" {
		t.Fatalf("expected PUT, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	if res.Headers["Content-Type"] != "image/png" {
		t.Fatalf("expected normalised content type header, got %v", res.Headers)
	}
	if res.Headers["x-goog-content-length-range"] != "0,2048" {
		t.Fatalf("expected content length range, got %v", res.Headers)
	}
	if res.Headers["Cache-Control"] == "" {
		t.Fatalf("expected cache control header, got %v", res.Headers)
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	if !strings.Contains(parsed.Path, "catalog/product/01HX/lock.png") {
		t.Fatalf("unexpected path %s", parsed.Path)
	}
	if parsed.Query().Get("X-Goog-Signature") == "" {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if len(signer.payloads) != 1 {
		t.Fatalf("expected one signing call, got %d", len(signer.payloads))
	}
}

func TestSignUploadValidation(t *testing.T) {
	client, err := NewClient(&fakeSigner{email: "svc@example.com"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	base := UploadRequest{
		Bucket:              "b",
		Object:              "catalog/hero/id/a.jpg",
		ContentType:         "image/jpeg",
		Size:                10,
		MaxSize:             100,
		AllowedContentTypes: []string{"image/*"},
	}

	cases := map[string]func(*UploadRequest){
		"missing bucket":       func(r *UploadRequest) { r.Bucket = " " },
		"missing object":       func(r *UploadRequest) { r.Object = "" },
		"missing content type": func(r *UploadRequest) { r.ContentType = "" },
		"denied content type":  func(r *UploadRequest) { r.ContentType = "application/pdf" },
		"zero size":            func(r *UploadRequest) { r.Size = 0 },
		"too large":            func(r *UploadRequest) { r.Size = 101 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			_, err := client.SignUpload(context.Background(), req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSignUploadPropagatesSignerError(t *testing.T) {
	client, err := NewClient(&fakeSigner{email: "svc@example.com", err: errors.New("kms down")})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.SignUpload(context.Background(), UploadRequest{Bucket: "b", Object: "o", ContentType: "image/png", Size: 1})
	if err == nil || IsValidationError(err) {
		t.Fatalf("expected signing failure, got %v", err)
	}
}

func TestNewClientRequiresSigner(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
	if _, err := NewClient(&fakeSigner{}); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner for empty email, got %v", err)
	}
}

func TestParseSignerKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	raw, _ := json.Marshal(map[string]string{
		"client_email": "signer@nirvana.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})

	signer, err := ParseSignerKey(string(raw))
	if err != nil {
		t.Fatalf("ParseSignerKey: %v", err)
	}
	if signer.Email() != "signer@nirvana.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %s", signer.Email())
	}
	sig, err := signer.SignBytes(context.Background(), []byte("payload"))
	if err != nil || len(sig) == 0 {
		t.Fatalf("SignBytes: %v", err)
	}

	for _, bad := range []string{"", "{", `{"client_email":"a@b"}`, `{"private_key":"x"}`} {
		if _, err := ParseSignerKey(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
