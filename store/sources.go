package store

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hsh0702/boardsum/model"
)

// SourceConfig is one crawl target definition as read from the seed file.
type SourceConfig struct {
	Code                 string                 `json:"code"`
	Name                 string                 `json:"name"`
	UrlPattern           string                 `json:"url_pattern"`
	Parser               string                 `json:"parser"`
	FetchIntervalMinutes int                    `json:"fetch_interval_minutes"`
	Metadata             map[string]interface{} `json:"metadata"`
}

func (config *SourceConfig) validate() error {
	if config.Code == "" || config.Name == "" || config.UrlPattern == "" || config.Parser == "" {
		return errors.New("source config requires code, name, url_pattern and parser")
	}
	return nil
}

// GetOrCreateSource returns the source row for the config's code, creating
// it when absent. Created sources start inactive, an existing row is never
// modified here so operator toggles survive reseeding.
func GetOrCreateSource(db *gorm.DB, config SourceConfig) (*model.Source, bool, error) {
	if err := config.validate(); err != nil {
		return nil, false, err
	}

	var existing model.Source
	err := db.First(&existing, "code = ?", config.Code).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "fail to look up source")
	}

	interval := config.FetchIntervalMinutes
	if interval <= 0 {
		interval = 60
	}
	source := model.Source{
		Code:                 config.Code,
		Name:                 config.Name,
		UrlPattern:           config.UrlPattern,
		Parser:               config.Parser,
		FetchIntervalMinutes: interval,
		Metadata:             datatypes.JSONMap(config.Metadata),
	}
	err = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&source).Error
	if err != nil {
		return nil, false, errors.Wrapf(err, "fail to create source %s", config.Code)
	}
	if source.Id != 0 {
		return &source, true, nil
	}

	// lost the insert race, fetch whoever won
	var refetched model.Source
	if err := db.First(&refetched, "code = ?", config.Code).Error; err != nil {
		return nil, false, errors.Wrapf(err, "source %s vanished after insert attempt", config.Code)
	}
	return &refetched, false, nil
}

// SeedSourcesFromFile reads source definitions from a JSON file and makes
// sure each exists. Returns how many were newly created and the total seen.
// A missing file is not an error, the operator simply has no seed data.
func SeedSourcesFromFile(db *gorm.DB, path string) (created int, total int, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return 0, 0, nil
		}
		return 0, 0, errors.Wrapf(readErr, "fail to read source seed file %s", path)
	}

	configs := []SourceConfig{}
	if err := json.Unmarshal(data, &configs); err != nil {
		return 0, 0, errors.Wrapf(err, "invalid source seed file %s", path)
	}

	for _, config := range configs {
		_, wasCreated, err := GetOrCreateSource(db, config)
		if err != nil {
			return created, total, err
		}
		total++
		if wasCreated {
			created++
		}
	}
	return created, total, nil
}

// ActiveSources returns every source an operator has enabled.
func ActiveSources(db *gorm.DB) ([]model.Source, error) {
	sources := []model.Source{}
	err := db.Where("is_active = ?", true).Order("code").Find(&sources).Error
	return sources, err
}

// RecordCrawlLog writes one audit row for a finished producer run.
func RecordCrawlLog(db *gorm.DB, runId string, sourceCode string, fetched int, filtered int, queued int) error {
	return db.Create(&model.CrawlLog{
		RunId:      runId,
		SourceCode: sourceCode,
		Fetched:    fetched,
		Filtered:   filtered,
		Queued:     queued,
	}).Error
}
