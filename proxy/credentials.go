// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/airlock-foundation/airlock/lib/codec"
	"github.com/airlock-foundation/airlock/lib/secret"
)

// CredentialSource provides named credential values. Get returns nil
// when the credential is unknown; implementations must be safe for
// concurrent Get calls.
type CredentialSource interface {
	Get(name string) *secret.Buffer
	Close() error
}

// EnvCredentialSource reads credentials from environment variables.
// Intended for development: env vars are visible in /proc/*/environ.
// Values are cached in mmap-backed buffers on first access.
type EnvCredentialSource struct {
	// Prefix is prepended to the converted credential name.
	// Prefix="AIRLOCK_" means Get("inference-api-key") reads
	// AIRLOCK_INFERENCE_API_KEY.
	Prefix string

	mu    sync.Mutex
	cache map[string]*secret.Buffer
}

// Get retrieves a credential from the environment.
func (s *EnvCredentialSource) Get(name string) *secret.Buffer {
	envName := s.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))

	s.mu.Lock()
	defer s.mu.Unlock()

	if buffer, ok := s.cache[name]; ok {
		return buffer
	}

	value := os.Getenv(envName)
	if value == "" {
		return nil
	}
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		return nil
	}
	if s.cache == nil {
		s.cache = make(map[string]*secret.Buffer)
	}
	s.cache[name] = buffer
	return buffer
}

// Close releases all cached buffers.
func (s *EnvCredentialSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, buffer := range s.cache {
		buffer.Close()
		delete(s.cache, name)
	}
	return nil
}

// FileCredentialSource reads credentials from a key=value file, one
// per line, with #-comments and blank lines ignored. More secure than
// env vars because the contents never appear in /proc.
//
// The file is loaded lazily on first Get. Close must not race Get.
type FileCredentialSource struct {
	// Path is the path to the credentials file.
	Path string

	once        sync.Once
	credentials map[string]*secret.Buffer
}

// Get retrieves a credential from the file. The lookup key is the
// credential name converted to env-var form: inference-api-key →
// INFERENCE_API_KEY.
func (s *FileCredentialSource) Get(name string) *secret.Buffer {
	s.once.Do(s.load)
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return s.credentials[key]
}

// Close releases all credential buffers.
func (s *FileCredentialSource) Close() error {
	for key, buffer := range s.credentials {
		buffer.Close()
		delete(s.credentials, key)
	}
	return nil
}

func (s *FileCredentialSource) load() {
	s.credentials = make(map[string]*secret.Buffer)
	if s.Path == "" {
		return
	}

	file, err := os.Open(s.Path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if index := strings.Index(line, "="); index > 0 {
			key := strings.TrimSpace(line[:index])
			value := strings.TrimSpace(line[index+1:])
			buffer, err := secret.NewFromBytes([]byte(value))
			if err != nil {
				continue
			}
			s.credentials[key] = buffer
		}
	}
}

// MapCredentialSource serves credentials from an in-memory map. Use
// NewMapCredentialSource to construct; the map is immutable afterward.
type MapCredentialSource struct {
	credentials map[string]*secret.Buffer
}

// NewMapCredentialSource copies each value into a protected buffer.
func NewMapCredentialSource(values map[string]string) (*MapCredentialSource, error) {
	credentials := make(map[string]*secret.Buffer, len(values))
	for key, value := range values {
		buffer, err := secret.NewFromBytes([]byte(value))
		if err != nil {
			for _, existing := range credentials {
				existing.Close()
			}
			return nil, fmt.Errorf("creating credential buffer for %q: %w", key, err)
		}
		credentials[key] = buffer
	}
	return &MapCredentialSource{credentials: credentials}, nil
}

// Get retrieves a credential by exact name.
func (s *MapCredentialSource) Get(name string) *secret.Buffer {
	return s.credentials[name]
}

// Close releases all credential buffers.
func (s *MapCredentialSource) Close() error {
	for key, buffer := range s.credentials {
		buffer.Close()
		delete(s.credentials, key)
	}
	return nil
}

// ChainCredentialSource tries sources in order, returning the first
// non-nil value. The Sources slice is immutable after construction.
type ChainCredentialSource struct {
	Sources []CredentialSource
}

// Get tries each source in order.
func (s *ChainCredentialSource) Get(name string) *secret.Buffer {
	for _, source := range s.Sources {
		if value := source.Get(name); value != nil {
			return value
		}
	}
	return nil
}

// Close closes every child source.
func (s *ChainCredentialSource) Close() error {
	for _, source := range s.Sources {
		source.Close()
	}
	return nil
}

// CredentialPayload is the CBOR document piped to the proxy's stdin by
// the orchestration layer at startup. Keys are credential names in
// env-var form (INFERENCE_API_KEY).
type CredentialPayload struct {
	Credentials map[string]string `cbor:"credentials"`
}

// PipeCredentialSource holds credentials parsed from a one-shot CBOR
// payload on an io.Reader (typically stdin). The raw buffer is zeroed
// after parsing so the full bundle does not linger in one contiguous
// heap region. Lookup is by env-var-form key, same as
// [FileCredentialSource].
type PipeCredentialSource struct {
	credentials map[string]*secret.Buffer
}

// ReadPipeCredentials reads the reader to completion and parses a
// [CredentialPayload]. Returns an error if the payload is empty,
// malformed, or carries no credentials.
func ReadPipeCredentials(reader io.Reader) (*PipeCredentialSource, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading credential payload: %w", err)
	}
	defer secret.Zero(raw)

	if len(raw) == 0 {
		return nil, fmt.Errorf("credential payload is empty")
	}

	var payload CredentialPayload
	if err := codec.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing credential payload: %w", err)
	}
	if len(payload.Credentials) == 0 {
		return nil, fmt.Errorf("credential payload carries no credentials")
	}

	credentials := make(map[string]*secret.Buffer, len(payload.Credentials))
	for key, value := range payload.Credentials {
		buffer, err := secret.NewFromBytes([]byte(value))
		if err != nil {
			for _, existing := range credentials {
				existing.Close()
			}
			return nil, fmt.Errorf("creating credential buffer for %q: %w", key, err)
		}
		credentials[key] = buffer
	}

	return &PipeCredentialSource{credentials: credentials}, nil
}

// Get retrieves a credential. The name is converted to env-var form
// before lookup, matching the payload's key convention.
func (s *PipeCredentialSource) Get(name string) *secret.Buffer {
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return s.credentials[key]
}

// Close releases all credential buffers.
func (s *PipeCredentialSource) Close() error {
	for key, buffer := range s.credentials {
		buffer.Close()
		delete(s.credentials, key)
	}
	return nil
}

var (
	_ CredentialSource = (*EnvCredentialSource)(nil)
	_ CredentialSource = (*FileCredentialSource)(nil)
	_ CredentialSource = (*MapCredentialSource)(nil)
	_ CredentialSource = (*ChainCredentialSource)(nil)
	_ CredentialSource = (*PipeCredentialSource)(nil)
)
