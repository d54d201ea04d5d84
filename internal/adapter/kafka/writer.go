// Package kafka publishes hot-spot results to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/config"
	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces one message per region to the sink topic.
// It implements pipeline.ReportLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// RegionMessage is the value of each published message.
type RegionMessage struct {
	RunID        string            `json:"run_id"`
	ComputedAt   time.Time         `json:"computed_at"`
	Attribute    string            `json:"attribute"`
	Alpha        float64           `json:"alpha"`
	Permutations int               `json:"permutations"`
	Seed         uint64            `json:"seed"`
	PValueMode   domain.PValueMode `json:"p_value_mode"`
	Council      string            `json:"council,omitempty"`
	County       string            `json:"county,omitempty"`
	domain.HotspotResult
}

// LoadReport publishes every region result in a single WriteMessages call.
// Messages are keyed by region id so reruns land on the same partition.
func (w *Writer) LoadReport(ctx context.Context, report *domain.HotspotReport) error {
	if len(report.Results) == 0 {
		return nil
	}
	names := make(map[string]domain.Names, len(report.Regions))
	for _, r := range report.Regions {
		names[r.ID] = r.Names
	}

	msgs := make([]kafkago.Message, len(report.Results))
	for i, res := range report.Results {
		msg, err := serializeToMessage(report, res, names[res.RegionID])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish results: %w", err)
	}
	w.logger.Info("hot-spot results published", "topic", w.writer.Topic, "messages", len(msgs), "run_id", report.RunID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(report *domain.HotspotReport, res domain.HotspotResult, names domain.Names) (kafkago.Message, error) {
	data, err := json.Marshal(RegionMessage{
		RunID:         report.RunID,
		ComputedAt:    report.ComputedAt,
		Attribute:     report.Attribute,
		Alpha:         report.Alpha,
		Permutations:  report.Permutations,
		Seed:          report.Seed,
		PValueMode:    report.PValueMode,
		Council:       names.Council,
		County:        names.County,
		HotspotResult: res,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize result for %s: %w", res.RegionID, err)
	}
	return kafkago.Message{
		Key:   []byte(res.RegionID),
		Value: data,
		Time:  report.ComputedAt,
		Headers: []kafkago.Header{
			{Key: "label", Value: []byte(res.Label)},
			{Key: "run_id", Value: []byte(report.RunID)},
			{Key: "computed_at", Value: []byte(report.ComputedAt.Format(time.RFC3339))},
		},
	}, nil
}
