package spawn

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header шапка, которая пишется в начало файла ориентаций при каждом сохранении.
const Header = `#
# Spawn orientation file
#
# WARNING: THIS FILE IS GENERATED AUTOMATICALLY. Editing it by hand is risky:
# a single mistyped character can corrupt the whole document. If the server
# cannot parse it, spawn pitch and yaw of EVERY world reset to 0 and the file
# is overwritten on the next spawn change.
# Check manual edits with "spawnctl validate <file>" (or any YAML validator)
# before starting the server.
#
# KEEP PERIODICAL BACKUPS.
#
`

// Orientation направление взгляда на точке спавна, в градусах.
type Orientation struct {
	Pitch float32
	Yaw   float32
}

// ParseError документ не удалось разобрать как YAML нужной формы.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("разбор документа спавнов: %v", e.Err)
	}
	return fmt.Sprintf("разбор документа спавнов %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Document YAML-документ вида "мир -> {pitch, yaw}" на диске.
// Не потокобезопасен: синхронизацию обеспечивает Store.
type Document struct {
	path    string
	header  string
	entries map[string]Orientation
	skipped []string
}

// NewDocument создаёт пустой документ, привязанный к пути path.
func NewDocument(path string) *Document {
	return &Document{
		path:    path,
		header:  Header,
		entries: make(map[string]Orientation),
	}
}

// Path путь к файлу документа.
func (d *Document) Path() string {
	return d.path
}

// Load перечитывает файл. При любой ошибке документ остаётся пустым.
// Ошибка чтения файла оборачивает ошибку os.ReadFile (например, fs.ErrNotExist),
// некорректное содержимое даёт *ParseError.
func (d *Document) Load() error {
	d.entries = make(map[string]Orientation)
	d.skipped = nil

	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("чтение документа спавнов %s: %w", d.path, err)
	}

	entries, skipped, err := Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = d.path
		}
		return err
	}

	d.entries = entries
	d.skipped = skipped
	return nil
}

// Orientation возвращает сохранённую ориентацию мира.
func (d *Document) Orientation(world string) (Orientation, bool) {
	o, ok := d.entries[world]
	return o, ok
}

// Set записывает ориентацию мира (только в памяти до Save).
func (d *Document) Set(world string, o Orientation) {
	d.entries[world] = o
}

// SetHeader задаёт шапку, которая будет записана при следующем Save.
func (d *Document) SetHeader(header string) {
	d.header = header
}

// Len количество миров в документе.
func (d *Document) Len() int {
	return len(d.entries)
}

// Worlds имена миров документа в отсортированном порядке.
func (d *Document) Worlds() []string {
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Skipped миры, значения которых при последней загрузке были нечитаемы
// и заменены на значения по умолчанию.
func (d *Document) Skipped() []string {
	return append([]string(nil), d.skipped...)
}

// Bytes сериализует документ: шапка + отсортированные по имени миры.
func (d *Document) Bytes() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range d.Worlds() {
		o := d.entries[name]
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
			&yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
				{Kind: yaml.ScalarNode, Tag: "!!str", Value: "pitch"},
				{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatAngle(o.Pitch)},
				{Kind: yaml.ScalarNode, Tag: "!!str", Value: "yaw"},
				{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatAngle(o.Yaw)},
			}},
		)
	}

	var buf bytes.Buffer
	buf.WriteString(d.header)
	if d.header != "" && !strings.HasSuffix(d.header, "\n") {
		buf.WriteByte('\n')
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("сериализация документа спавнов: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("сериализация документа спавнов: %w", err)
	}
	return buf.Bytes(), nil
}

// Save синхронно записывает документ на диск, создавая каталоги при необходимости.
func (d *Document) Save() error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return fmt.Errorf("создание каталога %s: %w", filepath.Dir(d.path), err)
	}
	if err := os.WriteFile(d.path, data, 0644); err != nil {
		return fmt.Errorf("запись документа спавнов %s: %w", d.path, err)
	}
	return nil
}

// Parse разбирает содержимое документа. Пустой документ (или только комментарии)
// даёт пустой результат без ошибки. Мир, у которого значение не отображение или
// pitch/yaw не конечные числа, получает 0 для нечитаемых полей и попадает в skipped.
func Parse(data []byte) (map[string]Orientation, []string, error) {
	entries := make(map[string]Orientation)

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return entries, nil, &ParseError{Err: err}
	}

	doc := &root
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return entries, nil, nil
		}
		doc = doc.Content[0]
	}

	switch {
	case doc.Kind == 0:
		return entries, nil, nil
	case doc.Kind == yaml.ScalarNode && doc.Tag == "!!null":
		return entries, nil, nil
	case doc.Kind != yaml.MappingNode:
		return entries, nil, &ParseError{Err: fmt.Errorf("строка %d: корень документа должен быть отображением", doc.Line)}
	}

	var skipped []string
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		if key.Kind != yaml.ScalarNode || key.Value == "" {
			continue
		}
		o, ok := parseOrientation(value)
		if !ok {
			skipped = append(skipped, key.Value)
		}
		entries[key.Value] = o
	}

	sort.Strings(skipped)
	return entries, skipped, nil
}

// parseOrientation читает pitch/yaw из узла мира; ok=false, если что-то пришлось заменить нулём.
func parseOrientation(node *yaml.Node) (Orientation, bool) {
	var o Orientation
	if node.Kind != yaml.MappingNode {
		return o, false
	}

	ok := true
	for i := 0; i+1 < len(node.Content); i += 2 {
		field, value := node.Content[i].Value, node.Content[i+1]
		if field != "pitch" && field != "yaw" {
			continue
		}

		var f float64
		if err := value.Decode(&f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxFloat32 {
			ok = false
			continue
		}
		if field == "pitch" {
			o.Pitch = float32(f)
		} else {
			o.Yaw = float32(f)
		}
	}
	return o, ok
}

// formatAngle печатает угол кратчайшей десятичной записью float32, всегда с точкой.
func formatAngle(v float32) string {
	s := strconv.FormatFloat(float64(v), 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
