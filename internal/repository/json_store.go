package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"tierbot/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

// legacyTimeLayout is the timestamp format written by earlier releases of the bot.
const legacyTimeLayout = "2006-01-02 15:04:05"

type jsonRecord struct {
	DiscordName string `json:"discord_name"`
	Username    string `json:"username"`
	Tier        string `json:"tier"`
	Region      string `json:"region"`
	LastUpdated string `json:"last_updated"`
}

type JSONStore struct {
	path   string
	logger zerolog.Logger
}

func NewJSONStore(path string, logger zerolog.Logger) *JSONStore {
	return &JSONStore{path: path, logger: logger.With().Str("store", "json").Logger()}
}

func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) Load(ctx context.Context) (Records, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info().Str("path", s.path).Msg("no tier data found, starting empty")
		return Records{}, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("tier data unreadable, starting empty")
		return Records{}, nil
	}

	raw := map[string]jsonRecord{}
	if err := json.Unmarshal(data, &raw); err != nil {
		s.quarantine(fmt.Errorf("%w: %v", domain.ErrStoreCorrupt, err))
		return Records{}, nil
	}

	records := make(Records, len(raw))
	for id, r := range raw {
		records[id] = domain.TierRecord{
			MemberID:     id,
			DisplayName:  r.DiscordName,
			GameUsername: r.Username,
			Region:       r.Region,
			Tier:         r.Tier,
			LastUpdated:  parseTimestamp(r.LastUpdated),
		}
	}

	s.logger.Debug().Int("count", len(records)).Str("path", s.path).Msg("tier data loaded")
	return records, nil
}

func (s *JSONStore) Save(ctx context.Context, records Records) error {
	raw := make(map[string]jsonRecord, len(records))
	for id, r := range records {
		raw[id] = jsonRecord{
			DiscordName: r.DisplayName,
			Username:    r.GameUsername,
			Tier:        r.Tier,
			Region:      r.Region,
			LastUpdated: r.LastUpdated.Format(time.RFC3339Nano),
		}
	}

	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode tier data: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to save tier data")
		return fmt.Errorf("failed to save tier data: %w", err)
	}
	return nil
}

// quarantine moves a corrupt file aside so the next save does not destroy it.
func (s *JSONStore) quarantine(cause error) {
	aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Warn().Err(cause).AnErr("rename_err", err).Str("path", s.path).Msg("tier data corrupt, starting empty")
		return
	}
	s.logger.Warn().Err(cause).Str("path", s.path).Str("moved_to", aside).Msg("tier data corrupt, starting empty")
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(legacyTimeLayout, s, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
