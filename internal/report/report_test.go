package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"image-compress-go/internal/compressor"
	"image-compress-go/internal/statistics"

	"github.com/google/uuid"
)

func TestReportWriteJSON(t *testing.T) {
	settings := compressor.Settings{QualityJPEG: 80, QualityWebP: 70, QualityPNG: 60, PreserveExif: true}
	r := New("", settings)
	if _, err := uuid.Parse(r.BatchID); err != nil {
		t.Fatalf("batch id %q is not a UUID: %v", r.BatchID, err)
	}
	r.BuildInfo = &BuildInfo{Workers: 4, MaxInputBytes: 50 << 20}

	stats := statistics.NewStatistics()
	ok := compressor.Result{Name: "a.jpg", SequenceIndex: 1, Status: compressor.StatusSuccess,
		OriginalSize: 1000, CompressedSize: 400, Ratio: 60, Checksum: "0123456789abcdef"}
	bad := compressor.Result{Name: "b.png", SequenceIndex: 0, Status: compressor.StatusError,
		Cause: compressor.KindDecode, Message: "b.png: decode error"}
	r.Results = append(r.Results, ok, bad)
	stats.Record(ok, "jpg")
	stats.Record(bad, "png")
	stats.Finalize()
	r.Summary = stats.Snapshot()

	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteJSON(r, path); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["version"].(float64) != SupportedReportVersion {
		t.Errorf("version: got %v", raw["version"])
	}
	if raw["batchId"] != r.BatchID {
		t.Errorf("batchId: got %v", raw["batchId"])
	}

	settingsJSON := raw["settings"].(map[string]any)
	if settingsJSON["qualityJpg"].(float64) != 80 || settingsJSON["preserveExif"] != true {
		t.Errorf("settings: got %v", settingsJSON)
	}

	results := raw["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("results: got %d", len(results))
	}
	first := results[0].(map[string]any)
	if first["name"] != "a.jpg" || first["checksum"] != "0123456789abcdef" || first["ratio"].(float64) != 60 {
		t.Errorf("first result: got %v", first)
	}
	second := results[1].(map[string]any)
	if second["status"] != "error" || second["cause"] != "decode_error" {
		t.Errorf("second result: got %v", second)
	}
	if _, leaked := second["Err"]; leaked {
		t.Error("internal error value serialized")
	}

	summary := raw["summary"].(map[string]any)
	if summary["filesCompressed"].(float64) != 1 || summary["filesWithErrors"].(float64) != 1 {
		t.Errorf("summary: got %v", summary)
	}
}

func TestReportFailed(t *testing.T) {
	r := New("batch-1", compressor.Settings{})
	if r.BatchID != "batch-1" {
		t.Fatalf("batch id: got %q", r.BatchID)
	}
	r.Results = []compressor.Result{
		{Name: "a", Status: compressor.StatusSuccess},
		{Name: "b", Status: compressor.StatusError, Cause: compressor.KindWrite},
		{Name: "c", Status: compressor.StatusError, Cause: compressor.KindCancelled},
	}
	failed := r.Failed()
	if len(failed) != 2 || failed[0].Name != "b" || failed[1].Name != "c" {
		t.Errorf("failed: got %+v", failed)
	}
}

func TestWriteJSONBadPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSON(New("", compressor.Settings{}), filepath.Join(blocker, "r.json")); err == nil {
		t.Fatal("expected error writing below a regular file")
	}
}
