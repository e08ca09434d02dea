package tester

import (
	"os"

	"github.com/quillsec/quill/internal/blob"
	"github.com/quillsec/quill/internal/model"
	"github.com/quillsec/quill/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testPath = "../../.test/"
)

var (
	db *gorm.DB
)

func Setup() {
	RemoveDBFile()

	_ = os.Setenv("ENV", "test")

	err := os.MkdirAll(testPath+"/db", os.ModePerm)
	if err != nil {
		panic(err)
	}

	db, err = gorm.Open(sqlite.Open(testPath+"db/quill.db"), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	err = model.Migrate(db)
	if err != nil {
		panic(err)
	}
}

func TestDB() *gorm.DB {
	return db
}

func TestStore() store.Store {
	return store.NewGormStore(db)
}

// Blobs returns a blob store rooted in the test directory.
func Blobs() *blob.Store {
	s, err := blob.NewStore(testPath+"blobs", TestStore())
	if err != nil {
		panic(err)
	}
	return s
}

func RemoveDBFile() {
	err := os.RemoveAll(testPath)
	if err != nil {
		panic(err)
	}
}
