package spawn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/annel0/spawnkeeper/internal/eventbus"
	"github.com/annel0/spawnkeeper/internal/logging"
	"github.com/annel0/spawnkeeper/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNilWorld у локации или запроса не задан мир.
	ErrNilWorld = errors.New("мир не задан")
	// ErrInvalidOrientation pitch или yaw не является конечным числом.
	ErrInvalidOrientation = errors.New("недопустимая ориентация")
	// ErrInvalidLocation координата не конечна или её блок не помещается в int32.
	ErrInvalidLocation = errors.New("недопустимые координаты")
)

// Spawn снимок ориентации спавна одного мира.
type Spawn struct {
	world world.World
	pitch float32
	yaw   float32
}

func (s Spawn) World() world.World { return s.world }
func (s Spawn) WorldName() string  { return s.world.Name() }
func (s Spawn) Pitch() float32     { return s.pitch }
func (s Spawn) Yaw() float32       { return s.yaw }

// Location нативная точка спавна мира с ориентацией из хранилища.
func (s Spawn) Location() world.Location {
	return s.world.SpawnLocation().WithOrientation(s.pitch, s.yaw)
}

// Store хранит ориентацию спавнов всех миров и синхронизирует её с YAML-документом.
// Кеш и документ изменяются под одной блокировкой.
type Store struct {
	mu     sync.Mutex
	server world.Server
	doc    *Document
	spawns map[string]*Spawn
	last   LoadResult

	logger  *logging.Logger
	bus     eventbus.EventBus
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithLogger задаёт логгер хранилища.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEventBus включает публикацию событий SpawnChanged/SpawnReloaded.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithMetrics подключает Prometheus-метрики.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithTracer задаёт трейсер OpenTelemetry (по умолчанию глобальный провайдер).
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewStore создаёт файл документа (если его нет) и загружает ориентации всех
// загруженных миров. Ошибка создания файла только логируется, ошибка чтения
// отражается в LastLoad.
func NewStore(path string, server world.Server, opts ...Option) (*Store, error) {
	if server == nil {
		return nil, errors.New("spawn: server не задан")
	}

	s := &Store{
		server: server,
		doc:    NewDocument(path),
		spawns: make(map[string]*Spawn),
		logger: logging.GetSpawnLogger(),
		tracer: otel.Tracer("github.com/annel0/spawnkeeper/internal/spawn"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ensureFile()
	s.Reload()
	return s, nil
}

// ensureFile создаёт родительские каталоги и пустой файл документа.
func (s *Store) ensureFile() {
	path := s.doc.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		s.logger.Error("Spawn storage file creation error: %v", err)
		return
	}
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		s.logger.Error("Spawn storage file creation error: %v", err)
		return
	}
	f.Close()
}

// Path путь к документу ориентаций.
func (s *Store) Path() string {
	return s.doc.Path()
}

// Reload сбрасывает кеш, перечитывает документ и заново заполняет записи
// для всех загруженных миров. Ошибки чтения не прерывают работу: документ
// считается пустым, а причина возвращается в LoadResult.
func (s *Store) Reload() LoadResult {
	_, span := s.tracer.Start(context.Background(), "spawn.Reload")
	defer span.End()

	s.mu.Lock()
	s.spawns = make(map[string]*Spawn)
	result := s.loadDocument()
	for _, w := range s.server.Worlds() {
		s.loadWorld(w)
	}
	result.Worlds = len(s.spawns)
	s.last = result
	s.metrics.setCached(len(s.spawns))
	s.mu.Unlock()

	s.metrics.observeReload(result.Status)
	span.SetAttributes(
		attribute.String("spawn.load_status", result.Status.String()),
		attribute.Int("spawn.worlds", result.Worlds),
	)

	switch result.Status {
	case LoadOK:
		s.logger.Debug("Документ спавнов загружен: %s", result)
		if len(result.Skipped) > 0 {
			s.logger.Warn("Нечитаемые значения заменены на 0 для миров: %v", result.Skipped)
		}
	case LoadMissing:
		s.logger.Debug("Документ спавнов отсутствует, используются значения по умолчанию: %v", result.Err)
	case LoadCorrupt:
		s.logger.Warn("Документ спавнов не прочитан, ориентации сброшены: %v", result.Err)
		span.RecordError(result.Err)
	}

	s.publish(context.Background(), eventbus.TypeSpawnReloaded, SpawnReloadedEvent{
		Status: result.Status.String(),
		Worlds: result.Worlds,
		Reason: result.Reason(),
	})
	return result
}

// LastLoad результат последней загрузки документа.
func (s *Store) LastLoad() LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Store) loadDocument() LoadResult {
	err := s.doc.Load()
	switch {
	case err == nil:
		return LoadResult{Status: LoadOK, Entries: s.doc.Len(), Skipped: s.doc.Skipped()}
	case errors.As(err, new(*ParseError)):
		return LoadResult{Status: LoadCorrupt, Err: err}
	default:
		// fs.ErrNotExist, ENOTDIR, нет прав: файл прочитать нельзя
		return LoadResult{Status: LoadMissing, Err: err}
	}
}

// loadWorld читает ориентацию мира из документа (0/0 при отсутствии) и кладёт её в кеш.
// Единый путь для массовой и ленивой загрузки.
func (s *Store) loadWorld(w world.World) *Spawn {
	o, _ := s.doc.Orientation(w.Name())
	sp := &Spawn{world: w, pitch: o.Pitch, yaw: o.Yaw}
	s.spawns[w.Name()] = sp
	return sp
}

// enrichment возвращает запись из кеша или загружает её.
func (s *Store) enrichment(w world.World) *Spawn {
	sp, ok := s.spawns[w.Name()]
	if !ok {
		sp = s.loadWorld(w)
		s.metrics.setCached(len(s.spawns))
		return sp
	}
	// Мир мог быть перезагружен хостом под тем же именем
	sp.world = w
	return sp
}

// Spawn возвращает запись мира, при необходимости создавая её.
func (s *Store) Spawn(w world.World) (Spawn, error) {
	if w == nil {
		return Spawn{}, ErrNilWorld
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.enrichment(w), nil
}

// GetSpawn возвращает нативную точку спавна мира с сохранённой ориентацией.
func (s *Store) GetSpawn(w world.World) (world.Location, error) {
	sp, err := s.Spawn(w)
	if err != nil {
		return world.Location{}, err
	}
	return sp.Location(), nil
}

// Spawns снимок всех закешированных записей, отсортированный по имени мира.
func (s *Store) Spawns() []Spawn {
	s.mu.Lock()
	result := make([]Spawn, 0, len(s.spawns))
	for _, sp := range s.spawns {
		result = append(result, *sp)
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].WorldName() < result[j].WorldName()
	})
	return result
}

// SetSpawn переносит нативный спавн мира в блок локации, сохраняет её pitch/yaw
// и синхронно записывает документ. Ошибка записи возвращается вызывающему;
// кеш к этому моменту уже обновлён и расходится с диском до следующего Reload.
func (s *Store) SetSpawn(ctx context.Context, loc world.Location) (Spawn, error) {
	ctx, span := s.tracer.Start(ctx, "spawn.SetSpawn",
		trace.WithAttributes(attribute.String("spawn.world", loc.WorldName())))
	defer span.End()

	if loc.World == nil {
		span.SetStatus(codes.Error, ErrNilWorld.Error())
		return Spawn{}, ErrNilWorld
	}
	if !finite(loc.Pitch) || !finite(loc.Yaw) {
		err := fmt.Errorf("%w: pitch=%v yaw=%v", ErrInvalidOrientation, loc.Pitch, loc.Yaw)
		span.SetStatus(codes.Error, err.Error())
		return Spawn{}, err
	}
	if !loc.Position().Finite() {
		err := fmt.Errorf("%w: x=%v y=%v z=%v", ErrInvalidLocation, loc.X, loc.Y, loc.Z)
		span.SetStatus(codes.Error, err.Error())
		return Spawn{}, err
	}

	name := loc.World.Name()
	block := loc.Block()

	s.mu.Lock()
	sp := s.enrichment(loc.World)
	if err := loc.World.SetSpawnLocation(block.X, block.Y, block.Z); err != nil {
		s.mu.Unlock()
		err = fmt.Errorf("установка спавна мира %s: %w", name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Spawn{}, err
	}

	sp.pitch = loc.Pitch
	sp.yaw = loc.Yaw
	s.doc.Set(name, Orientation{Pitch: sp.pitch, Yaw: sp.yaw})
	s.doc.SetHeader(Header)
	saveErr := s.doc.Save()
	snapshot := *sp
	s.mu.Unlock()

	s.metrics.observeSet(saveErr)
	if saveErr != nil {
		s.logger.Error("Не удалось сохранить спавн мира %s: %v", name, saveErr)
		span.RecordError(saveErr)
		span.SetStatus(codes.Error, saveErr.Error())
		return Spawn{}, saveErr
	}

	s.logger.Info("Спавн мира %s установлен: блок %v, pitch=%v, yaw=%v", name, block, sp.pitch, sp.yaw)
	s.publish(ctx, eventbus.TypeSpawnChanged, SpawnChangedEvent{
		World: name,
		X:     block.X,
		Y:     block.Y,
		Z:     block.Z,
		Pitch: snapshot.pitch,
		Yaw:   snapshot.yaw,
	})
	return snapshot, nil
}

// Snapshot сериализованное текущее содержимое документа (для резервных копий).
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Bytes()
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
