// Package history persists one conversation per username as a JSON file.
//
// Layout:
//
//	<dir>/history_<escaped username>.json        [["system","..."],["human","..."],...]
//	<dir>/history_<escaped username>.json.lock   advisory lock shared by every writer
//
// Writes go to a temp file that is renamed over the record, so readers never
// observe a torn file. Concurrent sessions for the same username are serialized
// by the lock; the last completed write wins.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/zhouzirui/character-chat/internal/model/chat"
)

var ErrInvalidRecord = errors.New("invalid history record")

const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "array",
    "items": [
      {"type": "string", "enum": ["system", "human", "assistant"]},
      {"type": "string"}
    ],
    "minItems": 2,
    "additionalItems": false
  }
}`

const lockRetryDelay = 10 * time.Millisecond

// FileStore implements the history store on the local filesystem.
type FileStore struct {
	dir    string
	schema *gojsonschema.Schema
	now    func() time.Time
}

// NewFileStore ensures dir exists and prepares the record schema.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history store: failed to create dir %s: %w", dir, err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
	if err != nil {
		return nil, fmt.Errorf("history store: failed to compile record schema: %w", err)
	}

	return &FileStore{dir: dir, schema: schema, now: time.Now}, nil
}

// Path returns the record file for user. The mapping is deterministic and
// escapes path separators, so any username stays inside the store directory.
func (s *FileStore) Path(user string) string {
	return filepath.Join(s.dir, "history_"+url.PathEscape(user)+".json")
}

// Load returns the persisted conversation for user, or an empty one when the
// user is unset or has no record. A record that fails validation is moved
// aside and treated as empty.
func (s *FileStore) Load(ctx context.Context, user string) (chat.Conversation, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return chat.Conversation{}, nil
	}

	path := s.Path(user)
	unlock, err := s.lock(ctx, path)
	if err != nil {
		return chat.Conversation{}, err
	}
	defer unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return chat.Conversation{}, nil
		}
		return chat.Conversation{}, fmt.Errorf("history store: failed to read %s: %w", path, err)
	}

	conversation, err := s.decode(data)
	if err != nil {
		s.quarantine(path, err)
		return chat.Conversation{}, nil
	}
	return conversation, nil
}

// Save overwrites the record for user. It is a no-op when user is unset.
func (s *FileStore) Save(ctx context.Context, user string, conversation chat.Conversation) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil
	}
	if conversation == nil {
		conversation = chat.Conversation{}
	}

	data, err := json.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("history store: failed to marshal conversation: %w", err)
	}

	path := s.Path(user)
	unlock, err := s.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	return writeFileAtomic(path, data, 0o644)
}

// Remove deletes the record for user if present.
func (s *FileStore) Remove(ctx context.Context, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil
	}

	path := s.Path(user)
	unlock, err := s.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("history store: failed to remove %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) decode(data []byte) (chat.Conversation, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(reasons, "; "))
	}

	var conversation chat.Conversation
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if conversation == nil {
		conversation = chat.Conversation{}
	}
	return conversation, nil
}

// quarantine renames a bad record so the next save starts fresh without destroying it.
func (s *FileStore) quarantine(path string, cause error) {
	target := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
	logger := log.Warn().Str("component", "history").Str("path", path).AnErr("cause", cause)
	if err := os.Rename(path, target); err != nil {
		logger.Err(err).Msg("failed to quarantine malformed history record")
		return
	}
	logger.Str("moved_to", target).Msg("quarantined malformed history record")
}

func (s *FileStore) lock(ctx context.Context, path string) (func(), error) {
	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("history store: failed to lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("history store: could not lock %s", path)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Warn().Str("component", "history").Str("path", path).Err(err).Msg("failed to release lock")
		}
	}, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("history store: failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("history store: failed to write temp file %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("history store: failed to sync temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("history store: failed to close temp file %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("history store: failed to chmod temp file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("history store: failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
