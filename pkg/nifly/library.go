package nifly

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/nifbridge/pkg/formats"
	"github.com/Faultbox/nifbridge/pkg/pack"
)

// Library loads and saves model files.
type Library struct {
	log         *zap.Logger
	packs       *pack.Manager
	defaultGame Game
	strict      bool
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the library logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(l *Library) {
		if log != nil {
			l.log = log
		}
	}
}

// WithPacks makes Load fall back to the given packs for paths missing on
// disk.
func WithPacks(m *pack.Manager) Option {
	return func(l *Library) {
		l.packs = m
	}
}

// WithDefaultGame sets the game used by New and by RSM imports.
func WithDefaultGame(g Game) Option {
	return func(l *Library) {
		l.defaultGame = g
	}
}

// WithStrict turns load warnings into errors.
func WithStrict(strict bool) Option {
	return func(l *Library) {
		l.strict = strict
	}
}

// NewLibrary creates a library.
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		log:         zap.NewNop(),
		defaultGame: GameSkyrimSE,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// New creates an empty file with a root node. An empty game selects the
// library default.
func (l *Library) New(game Game, rootName string) *File {
	if game == "" {
		game = l.defaultGame
	}
	f := NewFile(game, rootName)
	l.log.Debug("model created", zap.Stringer("asset_id", f.ID), zap.Stringer("game", game))
	return f
}

// Load reads a model from path. Missing paths are looked up in the packs
// when the library has any.
func (l *Library) Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && l.packs != nil {
		data, err = l.packs.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}

	f, err := l.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return f, nil
}

// LoadBytes parses a model held in memory. Both the native container and
// RSM models are accepted.
func (l *Library) LoadBytes(data []byte) (*File, error) {
	var (
		f   *File
		err error
	)
	switch {
	case bytes.HasPrefix(data, []byte(fileMagic)):
		f, err = Decode(data)
	case bytes.HasPrefix(data, []byte("GRSM")):
		var rsm *formats.RSM
		if rsm, err = formats.ParseRSM(data); err == nil {
			f, err = FromRSM(rsm, l.defaultGame)
		}
	default:
		err = ErrInvalidMagic
	}
	if err != nil {
		return nil, err
	}

	if err := l.checkWarnings(f); err != nil {
		return nil, err
	}

	l.log.Debug("model loaded",
		zap.Stringer("asset_id", f.ID),
		zap.Stringer("game", f.Game),
		zap.Int("nodes", len(f.Nodes)),
		zap.Int("shapes", len(f.Shapes)),
		zap.Int("sequences", len(f.Sequences)),
	)
	return f, nil
}

func (l *Library) checkWarnings(f *File) error {
	warns := f.Warnings()
	if len(warns) == 0 {
		return nil
	}
	if l.strict {
		return fmt.Errorf("%w: %s", ErrStrict, strings.Join(warns, "; "))
	}
	for _, w := range warns {
		l.log.Warn(w, zap.Stringer("asset_id", f.ID))
	}
	return nil
}

// Save validates f and writes it to path.
func (l *Library) Save(f *File, path string) error {
	data, err := l.SaveBytes(f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	l.log.Debug("model saved", zap.Stringer("asset_id", f.ID), zap.String("path", path))
	return nil
}

// SaveBytes validates f and serializes it.
func (l *Library) SaveBytes(f *File) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("saving model: %w", err)
	}
	return Encode(f)
}
