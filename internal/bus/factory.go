package bus

import (
	"fmt"
	"strings"

	"github.com/reelquery/reelquery/internal/config"
	"github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/logger"
)

// NewBus creates a Bus based on the configuration. A configured journal
// path wraps the bus so every published event is also appended to disk.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	var b Bus
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		b = NewMemoryBus(log)

	case "kafka":
		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       ParseKafkaBrokers(cfg.KafkaBrokers),
			ConsumerGroup: cfg.KafkaGroupID,
			ClientID:      cfg.KafkaClientID,
		}, log)
		if err != nil {
			return nil, err
		}
		b = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.JournalPath == "" {
		return b, nil
	}
	j, err := OpenJournal(cfg.JournalPath)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return NewJournaledBus(b, j, log), nil
}
