package inference

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

var csvHeader = []string{"datetime", "country_from", "country_to", "direction", "energy_sent_mw", "model_version"}

// Exporter writes one CSV per prediction run, keyed by the run's first
// predicted day. Re-running a day replaces its file.
type Exporter struct {
	dir string
}

func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// Export writes predictions to <dir>/predictions_YYYY-MM-DD.csv. The file is
// assembled in a temp file and renamed into place, so readers never see a
// partial export.
func (e *Exporter) Export(runDate time.Time, predictions []models.PredictionRecord) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	final := filepath.Join(e.dir, fmt.Sprintf("predictions_%s.csv", runDate.UTC().Format("2006-01-02")))

	tmp, err := os.CreateTemp(e.dir, "predictions-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp export: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, p := range predictions {
		row := []string{
			p.TS.UTC().Format(time.RFC3339),
			p.CountryFrom,
			p.CountryTo,
			p.Direction,
			strconv.FormatFloat(p.EnergySent, 'f', 2, 64),
			p.ModelVersion,
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("flush export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp export: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("finalize export: %w", err)
	}
	return final, nil
}
