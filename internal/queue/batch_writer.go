package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/plantpulse/plant-server/internal/database"
	"github.com/plantpulse/plant-server/internal/protocol"
)

// BatchWriter consumes readings from Kafka and batch-writes them to the
// database.
type BatchWriter struct {
	consumer      *Consumer
	db            *database.DB
	batchSize     int
	flushInterval time.Duration
	logger        zerolog.Logger
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(consumer *Consumer, db *database.DB, batchSize int, flushInterval time.Duration, logger zerolog.Logger) *BatchWriter {
	return &BatchWriter{
		consumer:      consumer,
		db:            db,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and writing to the database
func (bw *BatchWriter) Start(ctx context.Context) {
	bw.wg.Add(1)
	go bw.run(ctx)
}

// Stop stops the batch writer gracefully, flushing any pending batch
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
}

func (bw *BatchWriter) run(ctx context.Context) {
	defer bw.wg.Done()

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	msgChan := make(chan kafka.Message, 10)
	go func() {
		for {
			msg, err := bw.consumer.Consume(ctx)
			if err != nil {
				select {
				case <-bw.stopCh:
					return
				default:
				}
				bw.logger.Error().Err(err).Msg("consumer error")
				continue
			}
			select {
			case msgChan <- msg:
			case <-bw.stopCh:
				return
			}
		}
	}()

	for {
		select {
		case <-bw.stopCh:
			if len(batch) > 0 {
				bw.flush(ctx, batch)
			}
			return

		case <-ticker.C:
			if len(batch) > 0 {
				bw.flush(ctx, batch)
				batch = nil
			}

		case msg := <-msgChan:
			batch = append(batch, msg)
			if len(batch) >= bw.batchSize {
				bw.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) {
	readings := make([]*database.PlantReading, 0, len(batch))
	for _, msg := range batch {
		reading, err := protocol.DecodeReadingMessage(msg.Value)
		if err != nil {
			bw.logger.Error().Err(err).Msg("skipping undecodable reading")
			continue
		}
		readings = append(readings, &database.PlantReading{
			UserID:      reading.UserID,
			Online:      reading.Online,
			Temperature: reading.Temperature,
			Humidity:    reading.Humidity,
			FetchedAt:   reading.FetchedAt,
			ReceivedAt:  reading.ReceivedAt,
		})
	}

	if err := bw.db.InsertReadingsBatch(readings); err != nil {
		// Offsets are not committed, so the batch is redelivered.
		bw.logger.Error().Err(err).Int("batch", len(readings)).Msg("batch insert failed")
		return
	}

	for _, msg := range batch {
		if err := bw.consumer.Commit(ctx, msg); err != nil {
			bw.logger.Error().Err(err).Msg("failed to commit offset")
		}
	}

	bw.logger.Debug().Int("batch", len(readings)).Msg("batch written")
}
