package spawn

import "fmt"

// LoadStatus итог чтения документа.
type LoadStatus int

const (
	// LoadOK документ прочитан и разобран (возможно, без записей).
	LoadOK LoadStatus = iota
	// LoadMissing файла нет или его не удалось прочитать (каталог не создан, нет прав).
	LoadMissing
	// LoadCorrupt файл прочитан, но не разобран как документ спавнов.
	LoadCorrupt
)

func (s LoadStatus) String() string {
	switch s {
	case LoadOK:
		return "ok"
	case LoadMissing:
		return "missing"
	case LoadCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// MarshalText позволяет отдавать статус строкой в JSON.
func (s LoadStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LoadResult описывает последнюю загрузку документа. В обоих неуспешных
// случаях хранилище продолжает работу со значениями по умолчанию, а Err
// содержит причину.
type LoadResult struct {
	Status  LoadStatus `json:"status"`
	Entries int        `json:"entries"`
	Worlds  int        `json:"worlds"`
	Skipped []string   `json:"skipped,omitempty"`
	Err     error      `json:"-"`
}

// Reason текстовая причина для неуспешной загрузки.
func (r LoadResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r LoadResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s (%d миров): %v", r.Status, r.Worlds, r.Err)
	}
	return fmt.Sprintf("%s (%d записей, %d миров)", r.Status, r.Entries, r.Worlds)
}
