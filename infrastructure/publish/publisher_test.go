package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/notification"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

var approvedAt = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func approvedEvent(t *testing.T) *notification.Event {
	t.Helper()

	snap := &promotion.ProjectSnapshot{
		ProjectID:    "proj-7",
		ProjectName:  "North Campus",
		Amount:       1_250_000,
		BuildingArea: 3400,
		Completeness: 95,
	}
	pr := promotion.NewPullRequest("pr-42", snap, "North Campus", promotion.SpaceEnterprise, "alice", approvedAt)
	ev := promotion.Event{
		Type:      promotion.EventApproved,
		RequestID: pr.ID,
		Timestamp: approvedAt,
		Actor:     "carol",
		From:      promotion.StatusReviewing,
		To:        promotion.StatusApproved,
		Comment:   "ok",
	}

	event, err := notification.FromTransition("evt-1", ev, pr)
	if err != nil {
		t.Fatalf("FromTransition() error = %v", err)
	}
	return event
}

// memoryBucket records puts.
type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (b *memoryBucket) Name() string { return "memory" }

func (b *memoryBucket) Put(_ context.Context, key string, data []byte, _ string) error {
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	b.objects[key] = data
	return nil
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prefix  string
		space   promotion.TargetSpace
		project string
		request string
		want    string
		wantErr bool
	}{
		{"no prefix", "", promotion.SpaceDepartment, "p1", "r1", "department/p1/r1.json", false},
		{"prefix", "promotions", promotion.SpaceEnterprise, "p1", "r1", "promotions/enterprise/p1/r1.json", false},
		{"bad space", "", "galaxy", "p1", "r1", "", true},
		{"traversal", "", promotion.SpacePersonal, "..", "r1", "", true},
		{"slash", "", promotion.SpacePersonal, "p1", "a/b", "", true},
		{"empty project", "", promotion.SpacePersonal, "", "r1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ObjectKey(tt.prefix, tt.space, tt.project, tt.request)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ObjectKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("error = %v, want ErrInvalidKey", err)
			}
			if got != tt.want {
				t.Errorf("ObjectKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublisher_WritesApprovedSnapshot(t *testing.T) {
	t.Parallel()

	bucket := &memoryBucket{}
	p := NewPublisher(bucket, "/spaces/")

	if err := p.Notify(context.Background(), approvedEvent(t)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	data, ok := bucket.objects["spaces/enterprise/proj-7/pr-42.json"]
	if !ok {
		t.Fatalf("object not written, have %v", bucket.objects)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}
	if doc.RequestID != "pr-42" || doc.ApprovedBy != "carol" || doc.Applicant != "alice" {
		t.Errorf("document = %+v", doc)
	}
	if !doc.ApprovedAt.Equal(approvedAt) {
		t.Errorf("ApprovedAt = %v, want %v", doc.ApprovedAt, approvedAt)
	}
	if doc.Snapshot == nil || doc.Snapshot.Amount != 1_250_000 {
		t.Errorf("snapshot = %+v", doc.Snapshot)
	}
}

func TestPublisher_IgnoresOtherEvents(t *testing.T) {
	t.Parallel()

	bucket := &memoryBucket{}
	p := NewPublisher(bucket, "")

	for _, et := range []notification.EventType{notification.EventSubmitted, notification.EventEscalated, notification.EventRejected} {
		event, _ := notification.NewEvent("evt", et, "pr-1", notification.TransitionPayload{})
		if err := p.Notify(context.Background(), event); err != nil {
			t.Errorf("Notify(%s) error = %v", et, err)
		}
	}
	if len(bucket.objects) != 0 {
		t.Errorf("non-approved events wrote %d objects", len(bucket.objects))
	}
}

func TestPublisher_Errors(t *testing.T) {
	t.Parallel()

	event, _ := notification.NewEvent("evt", notification.EventApproved, "pr-1", notification.TransitionPayload{})
	if err := NewPublisher(&memoryBucket{}, "").Notify(context.Background(), event); !errors.Is(err, ErrMissingSnapshot) {
		t.Errorf("missing snapshot error = %v, want ErrMissingSnapshot", err)
	}

	boom := errors.New("bucket down")
	err := NewPublisher(&memoryBucket{err: boom}, "").NotifyBatch(context.Background(), []*notification.Event{approvedEvent(t)})
	if !errors.Is(err, boom) {
		t.Errorf("bucket error = %v, want it wrapped", err)
	}
}

func TestFilesystemBucket(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "published")
	p, err := NewFromConfig(context.Background(), config.PublishConfig{Driver: config.PublishFilesystem, Dir: root})
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}

	if err := p.Notify(context.Background(), approvedEvent(t)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "enterprise", "proj-7", "pr-42.json"))
	if err != nil {
		t.Fatalf("published file missing: %v", err)
	}
	if !strings.Contains(string(data), `"project_name": "North Campus"`) {
		t.Errorf("unexpected document: %s", data)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "enterprise", "proj-7"))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the document", len(entries))
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

type capturedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest, *sync.Mutex) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, capturedRequest{method: r.Method, path: r.URL.Path, header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &mu
}

func TestS3Bucket_Put(t *testing.T) {
	t.Parallel()

	srv, got, mu := captureServer(t, http.StatusOK)
	bucket, err := NewS3Bucket(context.Background(), S3Config{
		Bucket:          "spaces",
		Region:          "eu-west-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Endpoint:        srv.URL,
	})
	if err != nil {
		t.Fatalf("NewS3Bucket() error = %v", err)
	}
	if bucket.Name() != "s3://spaces" {
		t.Errorf("Name() = %q", bucket.Name())
	}

	if err := NewPublisher(bucket, "").Notify(context.Background(), approvedEvent(t)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(*got) != 1 {
		t.Fatalf("requests = %d, want 1", len(*got))
	}
	req := (*got)[0]
	if req.method != http.MethodPut || req.path != "/spaces/enterprise/proj-7/pr-42.json" {
		t.Errorf("request = %s %s", req.method, req.path)
	}
	if len(req.body) == 0 {
		t.Error("request body is empty")
	}
}

func TestAzureBucket_Put(t *testing.T) {
	t.Parallel()

	srv, got, mu := captureServer(t, http.StatusCreated)
	conn := "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;" +
		"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
		"BlobEndpoint=" + srv.URL + "/devstoreaccount1;"

	bucket, err := NewAzureBucket(AzureConfig{Container: "spaces", ConnectionString: conn})
	if err != nil {
		t.Fatalf("NewAzureBucket() error = %v", err)
	}
	if err := bucket.Put(context.Background(), "department/p1/r1.json", []byte(`{}`), ContentType); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(*got) != 1 {
		t.Fatalf("requests = %d, want 1", len(*got))
	}
	req := (*got)[0]
	if req.method != http.MethodPut || !strings.HasSuffix(req.path, "/spaces/department/p1/r1.json") {
		t.Errorf("request = %s %s", req.method, req.path)
	}
	if req.header.Get("x-ms-blob-type") != "BlockBlob" {
		t.Errorf("x-ms-blob-type = %q", req.header.Get("x-ms-blob-type"))
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	p, err := NewFromConfig(context.Background(), config.PublishConfig{})
	if err != nil || p != nil {
		t.Errorf("disabled = (%v, %v), want (nil, nil)", p, err)
	}
	if _, err := NewFromConfig(context.Background(), config.PublishConfig{Driver: "ftp"}); err == nil {
		t.Error("unknown driver should fail")
	}
	if _, err := NewFromConfig(context.Background(), config.PublishConfig{Driver: config.PublishAzure, Bucket: "c"}); err == nil {
		t.Error("azure without account should fail")
	}
	if _, err := NewS3Bucket(context.Background(), S3Config{}); err == nil {
		t.Error("s3 without bucket should fail")
	}
	if _, err := NewGCSBucket(context.Background(), GCSConfig{}); err == nil {
		t.Error("gcs without bucket should fail")
	}
}
