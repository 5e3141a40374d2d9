package sessionvalkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/bot-flow/internal/serviceerr"
)

type store struct {
	valkey valkey.Client
	prefix string
}

func newStore(valkeyClient valkey.Client, prefix string) *store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &store{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (s *store) Get(ctx context.Context, objectType objectType, objectID string, decodeInto any) error {
	return s.get(ctx, s.key(objectType, objectID), decodeInto)
}

// Set stores val under the object key. A zero ttl keeps the key forever.
func (s *store) Set(ctx context.Context, objectType objectType, id string, val any, ttl time.Duration) error {
	key := s.key(objectType, id)
	bytes, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	set := s.valkey.B().Set().Key(key).Value(valkey.BinaryString(bytes))
	var cmd valkey.Completed
	if ttl > 0 {
		cmd = set.PxMilliseconds(ttl.Milliseconds()).Build()
	} else {
		cmd = set.Build()
	}
	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *store) Destroy(ctx context.Context, objectType objectType, id string) error {
	key := s.key(objectType, id)
	n, err := s.valkey.Do(ctx, s.valkey.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}
	if n == 0 {
		return serviceerr.ErrNotFound
	}

	return nil
}

func (s *store) get(ctx context.Context, key string, decodeInto any) error {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return serviceerr.ErrNotFound
		}

		return fmt.Errorf("executing get command: %w", err)
	}

	if err := json.Unmarshal(bytes, decodeInto); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}

	return nil
}

func (s *store) key(objectType objectType, objectID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, objectType, objectID)
}

func getStoreObjects[T any](ctx context.Context, s *store, objectType objectType, decodeInto *[]T) error {
	pattern := s.key(objectType, "*")
	var cursor uint64
	for {
		scan, err := s.valkey.Do(ctx, s.valkey.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build()).AsScanEntry()
		if err != nil {
			return fmt.Errorf("executing scan command: %w", err)
		}

		cursor = scan.Cursor
		*decodeInto = slices.Grow(*decodeInto, len(scan.Elements))
		for _, key := range scan.Elements {
			var decoded T
			if err := s.get(ctx, key, &decoded); err != nil {
				// deleted between SCAN and GET
				if errors.Is(err, serviceerr.ErrNotFound) {
					continue
				}
				return fmt.Errorf("getting an element: %w", err)
			}

			*decodeInto = append(*decodeInto, decoded)
		}

		if cursor == 0 {
			return nil
		}
	}
}
