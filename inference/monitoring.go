package inference

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/featurestore"
	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// DirectionError is the mean absolute error of one flow direction over one
// day, computed against realized flows.
type DirectionError struct {
	Date      time.Time
	Direction string
	MAE       float64
	Hours     int
}

// Monitor scores past predictions against realized flows once the realized
// data lands, one day at a time.
type Monitor struct {
	store  featurestore.Store
	home   string
	path   string
	logger *zap.Logger
}

func NewMonitor(store featurestore.Store, home, path string, logger *zap.Logger) *Monitor {
	return &Monitor{store: store, home: home, path: path, logger: logger}
}

// Score joins predictions with realized flows for the day containing `day`
// and appends per-direction MAE rows to the monitoring CSV. Days where either
// side is still missing are skipped without error.
func (m *Monitor) Score(ctx context.Context, day time.Time) ([]DirectionError, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	window := models.TimeRange{Start: start, End: start.Add(24 * time.Hour)}

	predicted, err := m.store.Read(ctx, models.GroupPredictions, nil, window)
	if err != nil {
		return nil, fmt.Errorf("read predictions: %w", err)
	}
	realized, err := m.store.Read(ctx, models.GroupPhysicalFlow, nil, window)
	if err != nil {
		return nil, fmt.Errorf("read realized flows: %w", err)
	}
	if len(predicted) == 0 || len(realized) == 0 {
		m.logger.Info("nothing to score yet",
			zap.Time("day", start),
			zap.Int("predicted", len(predicted)),
			zap.Int("realized", len(realized)))
		return nil, nil
	}

	actual := make(map[models.RecordKey]float64, len(realized))
	for _, r := range realized {
		actual[r.Key()] = r.Value
	}

	type sums struct {
		abs   float64
		count int
	}
	byDirection := map[string]*sums{}
	for _, p := range predicted {
		value, ok := actual[p.Key()]
		if !ok {
			continue
		}
		from, _, err := models.SplitPair(p.EntityID)
		if err != nil {
			continue
		}
		direction := models.FlowDirection(from, m.home)
		s, ok := byDirection[direction]
		if !ok {
			s = &sums{}
			byDirection[direction] = s
		}
		s.abs += math.Abs(p.Value - value)
		s.count++
	}

	var results []DirectionError
	for _, direction := range []string{models.DirectionExport, models.DirectionImport} {
		s, ok := byDirection[direction]
		if !ok || s.count == 0 {
			continue
		}
		results = append(results, DirectionError{
			Date:      start,
			Direction: direction,
			MAE:       s.abs / float64(s.count),
			Hours:     s.count,
		})
	}
	if len(results) == 0 {
		return nil, nil
	}
	if err := m.append(results); err != nil {
		return nil, err
	}
	for _, r := range results {
		m.logger.Info("daily error scored",
			zap.Time("day", r.Date),
			zap.String("direction", r.Direction),
			zap.Float64("mae", r.MAE),
			zap.Int("hours", r.Hours))
	}
	return results, nil
}

func (m *Monitor) append(results []DirectionError) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create monitoring dir: %w", err)
	}
	info, statErr := os.Stat(m.path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open monitoring csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write([]string{"date", "direction", "mae_mw", "hours"}); err != nil {
			return fmt.Errorf("write monitoring header: %w", err)
		}
	}
	for _, r := range results {
		row := []string{
			r.Date.Format("2006-01-02"),
			r.Direction,
			strconv.FormatFloat(r.MAE, 'f', 2, 64),
			strconv.Itoa(r.Hours),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write monitoring row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
