package inference

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/featurestore"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

func writeGroup(t *testing.T, store *featurestore.MemoryStore, name string, records []models.TimeSeriesRecord) {
	t.Helper()
	group := &models.FeatureGroup{Name: name, Version: 1, Records: records}
	if err := store.Write(context.Background(), group); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestScoreComputesDirectionalMAE(t *testing.T) {
	store := featurestore.NewMemoryStore()
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	exportPair := models.PairID("NL", "BE")
	importPair := models.PairID("DE_LU", "NL")

	var predicted, realized []models.TimeSeriesRecord
	for h := 0; h < 4; h++ {
		ts := day.Add(time.Duration(h) * time.Hour)
		// Export side off by a constant 10, import side exact.
		predicted = append(predicted,
			models.TimeSeriesRecord{EntityID: exportPair, TS: ts, Metric: models.MetricEnergySent, Value: 110},
			models.TimeSeriesRecord{EntityID: importPair, TS: ts, Metric: models.MetricEnergySent, Value: 50},
		)
		realized = append(realized,
			models.TimeSeriesRecord{EntityID: exportPair, TS: ts, Metric: models.MetricEnergySent, Value: 100},
			models.TimeSeriesRecord{EntityID: importPair, TS: ts, Metric: models.MetricEnergySent, Value: 50},
		)
	}
	writeGroup(t, store, models.GroupPredictions, predicted)
	writeGroup(t, store, models.GroupPhysicalFlow, realized)

	path := filepath.Join(t.TempDir(), "mae.csv")
	monitor := NewMonitor(store, "NL", path, zap.NewNop())

	results, err := monitor.Score(context.Background(), day.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d direction results, want 2", len(results))
	}
	for _, r := range results {
		switch r.Direction {
		case models.DirectionExport:
			if r.MAE != 10 {
				t.Fatalf("export MAE = %v, want 10", r.MAE)
			}
		case models.DirectionImport:
			if r.MAE != 0 {
				t.Fatalf("import MAE = %v, want 0", r.MAE)
			}
		default:
			t.Fatalf("unexpected direction %q", r.Direction)
		}
		if r.Hours != 4 {
			t.Fatalf("%s hours = %d, want 4", r.Direction, r.Hours)
		}
	}
}

func TestScoreAppendsWithSingleHeader(t *testing.T) {
	store := featurestore.NewMemoryStore()
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	pair := models.PairID("NL", "BE")
	records := []models.TimeSeriesRecord{
		{EntityID: pair, TS: day, Metric: models.MetricEnergySent, Value: 100},
	}
	writeGroup(t, store, models.GroupPredictions, records)
	writeGroup(t, store, models.GroupPhysicalFlow, records)

	path := filepath.Join(t.TempDir(), "mae.csv")
	monitor := NewMonitor(store, "NL", path, zap.NewNop())
	ctx := context.Background()

	if _, err := monitor.Score(ctx, day); err != nil {
		t.Fatalf("first Score: %v", err)
	}
	if _, err := monitor.Score(ctx, day); err != nil {
		t.Fatalf("second Score: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("csv has %d rows, want header + 2 entries", len(rows))
	}
	if rows[0][0] != "date" {
		t.Fatalf("first row is %v, want header", rows[0])
	}
}

func TestScoreSkipsWhenDataMissing(t *testing.T) {
	store := featurestore.NewMemoryStore()
	path := filepath.Join(t.TempDir(), "mae.csv")
	monitor := NewMonitor(store, "NL", path, zap.NewNop())

	results, err := monitor.Score(context.Background(), time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if results != nil {
		t.Fatalf("got results %v for empty day, want none", results)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("monitoring csv created for empty day")
	}
}
