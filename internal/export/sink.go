package export

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/model"
)

// Sink receives leads outside the file export, e.g. a CRM.
type Sink interface {
	Name() string
	Send(ctx context.Context, leads []model.Lead) (int, error)
}

// Deliver sends a snapshot of src to sink and returns how many leads the
// sink accepted. An empty source yields ErrNothingToExport and the sink is
// not called.
func (e *Exporter) Deliver(ctx context.Context, src Source, sink Sink) (int, error) {
	rows := src.Leads()
	if len(rows) == 0 {
		return 0, ErrNothingToExport
	}

	n, err := sink.Send(ctx, rows)
	if err != nil {
		return n, eris.Wrapf(err, "export: deliver to %s", sink.Name())
	}

	zap.L().Info("export: delivered leads",
		zap.String("sink", sink.Name()),
		zap.Int("sent", n),
		zap.Int("leads", len(rows)),
	)
	return n, nil
}
