package training

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/featurestore"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// seedFeatures writes a complete feature set for every zone at each hour in
// the window. Values are deterministic functions of the hour so joins can be
// checked per row.
func seedFeatures(t *testing.T, store *featurestore.MemoryStore, window models.TimeRange) {
	t.Helper()
	weather := &models.FeatureGroup{Name: models.GroupWeather, Version: 1}
	prices := &models.FeatureGroup{Name: models.GroupPricesGeneration, Version: 1}
	for ts := window.Start; ts.Before(window.End); ts = ts.Add(time.Hour) {
		hour := float64(ts.Hour())
		for _, zone := range models.Zones {
			for _, metric := range []string{
				models.MetricTemperature2M, models.MetricCloudcover,
				models.MetricWindSpeed10M, models.MetricWindSpeed100M,
				models.MetricDirectRadiation, models.MetricPrecipitation,
			} {
				weather.Records = append(weather.Records, models.TimeSeriesRecord{
					EntityID: zone, TS: ts, Metric: metric, Value: hour,
				})
			}
			prices.Records = append(prices.Records,
				models.TimeSeriesRecord{EntityID: zone, TS: ts, Metric: models.MetricEnergyPrice, Value: 40 + hour},
				models.TimeSeriesRecord{EntityID: zone, TS: ts, Metric: models.MetricTotalGeneration, Value: 1000 + hour},
			)
		}
	}
	if err := store.Write(context.Background(), weather); err != nil {
		t.Fatalf("seed weather: %v", err)
	}
	if err := store.Write(context.Background(), prices); err != nil {
		t.Fatalf("seed prices: %v", err)
	}
}

func seedFlows(t *testing.T, store *featurestore.MemoryStore, window models.TimeRange) int {
	t.Helper()
	flows := &models.FeatureGroup{Name: models.GroupPhysicalFlow, Version: 1}
	n := 0
	for ts := window.Start; ts.Before(window.End); ts = ts.Add(time.Hour) {
		for _, pair := range models.BorderPairs("NL") {
			flows.Records = append(flows.Records, models.TimeSeriesRecord{
				EntityID: pair, TS: ts, Metric: models.MetricEnergySent, Value: float64(ts.Hour()),
			})
			n++
		}
	}
	if err := store.Write(context.Background(), flows); err != nil {
		t.Fatalf("seed flows: %v", err)
	}
	return n
}

func testWindow() models.TimeRange {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return models.TimeRange{Start: start, End: start.Add(12 * time.Hour)}
}

func TestTrainingMatrixJoinsTargetsWithFeatures(t *testing.T) {
	store := featurestore.NewMemoryStore()
	window := testWindow()
	seedFeatures(t, store, window)
	wantRows := seedFlows(t, store, window)

	asm := NewAssembler(store, "NL", FeatureModeTotal, zap.NewNop())
	matrix, err := asm.TrainingMatrix(context.Background(), window)
	if err != nil {
		t.Fatalf("TrainingMatrix: %v", err)
	}

	if matrix.NumRows() != wantRows {
		t.Fatalf("got %d rows, want %d", matrix.NumRows(), wantRows)
	}
	if len(matrix.Target) != wantRows || len(matrix.Index) != wantRows {
		t.Fatalf("target/index lengths %d/%d, want %d", len(matrix.Target), len(matrix.Index), wantRows)
	}

	// Chronological order.
	for i := 1; i < matrix.NumRows(); i++ {
		if matrix.Index[i].TS.Before(matrix.Index[i-1].TS) {
			t.Fatalf("row %d out of chronological order", i)
		}
	}

	// One-hot columns mark exactly the pair's zones; the price column for the
	// sending zone carries the seeded value.
	columns := map[string]int{}
	for i, c := range matrix.Columns {
		columns[c] = i
	}
	for i, key := range matrix.Index {
		row := matrix.Rows[i]
		if row[columns["from_"+key.From]] != 1 || row[columns["to_"+key.To]] != 1 {
			t.Fatalf("row %d: pair one-hot not set for %s->%s", i, key.From, key.To)
		}
		wantPrice := 40 + float64(key.TS.Hour())
		if got := row[columns[pivotColumn(models.MetricEnergyPrice, key.From)]]; got != wantPrice {
			t.Fatalf("row %d: price = %v, want %v", i, got, wantPrice)
		}
		if matrix.Target[i] != float64(key.TS.Hour()) {
			t.Fatalf("row %d: target = %v, want hour value", i, matrix.Target[i])
		}
	}
}

func TestTrainingMatrixDropsRowsWithMissingFeatures(t *testing.T) {
	store := featurestore.NewMemoryStore()
	window := testWindow()
	seedFeatures(t, store, window)
	total := seedFlows(t, store, window)

	// Flow at an hour no features cover.
	orphanTS := window.End.Add(time.Hour)
	orphan := &models.FeatureGroup{Name: models.GroupPhysicalFlow, Version: 1, Records: []models.TimeSeriesRecord{
		{EntityID: models.PairID("NL", "BE"), TS: orphanTS, Metric: models.MetricEnergySent, Value: 100},
	}}
	if err := store.Write(context.Background(), orphan); err != nil {
		t.Fatalf("seed orphan flow: %v", err)
	}

	asm := NewAssembler(store, "NL", FeatureModeTotal, zap.NewNop())
	wide := models.TimeRange{Start: window.Start, End: orphanTS.Add(time.Hour)}
	matrix, err := asm.TrainingMatrix(context.Background(), wide)
	if err != nil {
		t.Fatalf("TrainingMatrix: %v", err)
	}
	if matrix.NumRows() != total {
		t.Fatalf("got %d rows, want %d (orphan hour dropped)", matrix.NumRows(), total)
	}
}

func TestInferenceMatrixCoversAllPairsPerHour(t *testing.T) {
	window := testWindow()
	weather := &models.FeatureGroup{Name: models.GroupWeather, Version: 1}
	prices := &models.FeatureGroup{Name: models.GroupPricesGeneration, Version: 1}
	for ts := window.Start; ts.Before(window.End); ts = ts.Add(time.Hour) {
		for _, zone := range models.Zones {
			for _, metric := range []string{
				models.MetricTemperature2M, models.MetricCloudcover,
				models.MetricWindSpeed10M, models.MetricWindSpeed100M,
				models.MetricDirectRadiation, models.MetricPrecipitation,
			} {
				weather.Records = append(weather.Records, models.TimeSeriesRecord{
					EntityID: zone, TS: ts, Metric: metric, Value: 1,
				})
			}
			prices.Records = append(prices.Records,
				models.TimeSeriesRecord{EntityID: zone, TS: ts, Metric: models.MetricEnergyPrice, Value: 50},
				models.TimeSeriesRecord{EntityID: zone, TS: ts, Metric: models.MetricTotalGeneration, Value: 900},
			)
		}
	}

	asm := NewAssembler(featurestore.NewMemoryStore(), "NL", FeatureModeTotal, zap.NewNop())
	matrix, err := asm.InferenceMatrix([]*models.FeatureGroup{weather, prices}, window)
	if err != nil {
		t.Fatalf("InferenceMatrix: %v", err)
	}

	pairs := len(models.BorderPairs("NL"))
	want := window.Hours() * pairs
	if matrix.NumRows() != want {
		t.Fatalf("got %d rows, want %d (%d pairs x %d hours)", matrix.NumRows(), want, pairs, window.Hours())
	}
	if matrix.Target != nil {
		t.Fatalf("inference matrix must not carry a target")
	}
	seen := map[models.RowKey]bool{}
	for _, key := range matrix.Index {
		if seen[key] {
			t.Fatalf("duplicate row key %v", key)
		}
		seen[key] = true
	}
}

func TestInferenceMatrixNoGroups(t *testing.T) {
	asm := NewAssembler(featurestore.NewMemoryStore(), "NL", FeatureModeTotal, zap.NewNop())
	if _, err := asm.InferenceMatrix(nil, testWindow()); err == nil {
		t.Fatal("expected error for missing forecast groups")
	}
}

func TestAllProductionModeAddsTypeColumns(t *testing.T) {
	store := featurestore.NewMemoryStore()
	window := testWindow()
	seedFeatures(t, store, window)
	wantRows := seedFlows(t, store, window)

	// Per-type generation reported by NL only; the other zones never
	// produce it.
	solar := &models.FeatureGroup{Name: models.GroupPricesGeneration, Version: 1}
	for ts := window.Start; ts.Before(window.End); ts = ts.Add(time.Hour) {
		solar.Records = append(solar.Records, models.TimeSeriesRecord{
			EntityID: "NL", TS: ts, Metric: models.MetricSolar, Value: 300,
		})
	}
	if err := store.Write(context.Background(), solar); err != nil {
		t.Fatalf("seed solar: %v", err)
	}

	asm := NewAssembler(store, "NL", FeatureModeAll, zap.NewNop())
	matrix, err := asm.TrainingMatrix(context.Background(), window)
	if err != nil {
		t.Fatalf("TrainingMatrix: %v", err)
	}
	if matrix.NumRows() != wantRows {
		t.Fatalf("got %d rows, want %d (sparse type series must not drop rows)", matrix.NumRows(), wantRows)
	}

	columns := map[string]int{}
	for i, c := range matrix.Columns {
		columns[c] = i
	}
	solarNL, ok := columns[pivotColumn(models.MetricSolar, "NL")]
	if !ok {
		t.Fatal("solar_nl column missing in all-production mode")
	}
	solarBE, ok := columns[pivotColumn(models.MetricSolar, "BE")]
	if !ok {
		t.Fatal("solar_be column missing in all-production mode")
	}
	if _, ok := columns[pivotColumn("nuclear", "DE_LU")]; !ok {
		t.Fatal("nuclear_de_lu column missing in all-production mode")
	}
	for i := range matrix.Rows {
		if got := matrix.Rows[i][solarNL]; got != 300 {
			t.Fatalf("row %d: solar_nl = %v, want 300", i, got)
		}
		if got := matrix.Rows[i][solarBE]; got != 0 {
			t.Fatalf("row %d: solar_be = %v, want 0 for an unreported type", i, got)
		}
	}
}

func TestFeatureColumnsPerMode(t *testing.T) {
	total := FeatureColumns(FeatureModeTotal)
	all := FeatureColumns(FeatureModeAll)

	wantExtra := len(models.Zones) * len(models.GenerationTypeMetrics)
	if len(all) != len(total)+wantExtra {
		t.Fatalf("all mode has %d columns, want %d", len(all), len(total)+wantExtra)
	}
	for _, col := range total {
		if col == pivotColumn(models.MetricSolar, "NL") {
			t.Fatal("total mode must not carry per-type columns")
		}
	}
	// Total-mode columns are a prefix-compatible subset: shared columns keep
	// their relative order in both modes.
	shared := map[string]bool{}
	for _, col := range total {
		shared[col] = true
	}
	var filtered []string
	for _, col := range all {
		if shared[col] {
			filtered = append(filtered, col)
		}
	}
	for i := range total {
		if filtered[i] != total[i] {
			t.Fatalf("column order diverges at %d: %q vs %q", i, filtered[i], total[i])
		}
	}
}

func TestInferenceMatrixAllModeDefaultsMissingTypes(t *testing.T) {
	window := testWindow()
	weather := &models.FeatureGroup{Name: models.GroupWeather, Version: 1}
	prices := &models.FeatureGroup{Name: models.GroupPricesGeneration, Version: 1}
	for ts := window.Start; ts.Before(window.End); ts = ts.Add(time.Hour) {
		for _, zone := range models.Zones {
			for _, metric := range []string{
				models.MetricTemperature2M, models.MetricCloudcover,
				models.MetricWindSpeed10M, models.MetricWindSpeed100M,
				models.MetricDirectRadiation, models.MetricPrecipitation,
			} {
				weather.Records = append(weather.Records, models.TimeSeriesRecord{
					EntityID: zone, TS: ts, Metric: metric, Value: 1,
				})
			}
			prices.Records = append(prices.Records,
				models.TimeSeriesRecord{EntityID: zone, TS: ts, Metric: models.MetricEnergyPrice, Value: 50},
				models.TimeSeriesRecord{EntityID: zone, TS: ts, Metric: models.MetricTotalGeneration, Value: 900},
			)
		}
	}

	asm := NewAssembler(featurestore.NewMemoryStore(), "NL", FeatureModeAll, zap.NewNop())
	matrix, err := asm.InferenceMatrix([]*models.FeatureGroup{weather, prices}, window)
	if err != nil {
		t.Fatalf("InferenceMatrix: %v", err)
	}
	want := window.Hours() * len(models.BorderPairs("NL"))
	if matrix.NumRows() != want {
		t.Fatalf("got %d rows, want %d (forecast feeds carry no per-type series)", matrix.NumRows(), want)
	}
}
