package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var ErrDocumentNotFound = errors.New("document not found")
var ErrTitleTaken = errors.New("document title already taken")

// Document is the metadata row for one document. Content lives in
// snapshots, not here.
type Document struct {
	ID        uint64 `gorm:"primaryKey"`
	OwnerID   uint64 `gorm:"index"`
	Title     string `gorm:"size:255;uniqueIndex"`
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Document) TableName() string { return "documents" }

// InitMySQL opens the gorm handle and migrates the metadata schema.
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, err
	}
	return db, nil
}

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) GetDocumentID(ctx context.Context, title string) (string, error) {
	var doc Document
	err := s.db.WithContext(ctx).Select("id").Where("title = ?", title).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrDocumentNotFound
		}
		return "", err
	}
	return strconv.FormatUint(doc.ID, 10), nil
}

func (s *DocumentStore) CreateDocument(ctx context.Context, ownerID uint64, title string) error {
	err := s.db.WithContext(ctx).Create(&Document{OwnerID: ownerID, Title: title}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrTitleTaken
	}
	return err
}
