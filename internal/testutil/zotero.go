package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// Keys present in the library built by ZoteroLibrary.
const (
	ArticleKey    = "ABCD1234"
	AttachmentKey = "ATTACH01"
	GroupArticle  = "GRP00001"
	DeletedKey    = "DELETED1"
	GroupID       = 4711
)

// zoteroFixture is a subset of the Zotero schema with one article carrying
// a PDF with two annotations, one group article and one trashed article.
const zoteroFixture = `
CREATE TABLE libraries (libraryID INTEGER PRIMARY KEY, type TEXT NOT NULL);
CREATE TABLE groups (groupID INTEGER PRIMARY KEY, libraryID INT NOT NULL UNIQUE, name TEXT);
CREATE TABLE itemTypes (itemTypeID INTEGER PRIMARY KEY, typeName TEXT);
CREATE TABLE items (
	itemID INTEGER PRIMARY KEY, itemTypeID INT NOT NULL,
	dateAdded TEXT NOT NULL, dateModified TEXT NOT NULL,
	libraryID INT NOT NULL, key TEXT NOT NULL, UNIQUE (libraryID, key)
);
CREATE TABLE fields (fieldID INTEGER PRIMARY KEY, fieldName TEXT);
CREATE TABLE itemDataValues (valueID INTEGER PRIMARY KEY, value UNIQUE);
CREATE TABLE itemData (itemID INT, fieldID INT, valueID INT, PRIMARY KEY (itemID, fieldID));
CREATE TABLE creators (creatorID INTEGER PRIMARY KEY, firstName TEXT, lastName TEXT, fieldMode INT);
CREATE TABLE creatorTypes (creatorTypeID INTEGER PRIMARY KEY, creatorType TEXT);
CREATE TABLE itemCreators (
	itemID INT, creatorID INT, creatorTypeID INT, orderIndex INT,
	PRIMARY KEY (itemID, creatorID, creatorTypeID, orderIndex)
);
CREATE TABLE itemAttachments (itemID INTEGER PRIMARY KEY, parentItemID INT, contentType TEXT);
CREATE TABLE itemAnnotations (
	itemID INTEGER PRIMARY KEY, parentItemID INT NOT NULL, type INTEGER NOT NULL,
	text TEXT, comment TEXT, color TEXT, pageLabel TEXT,
	sortIndex TEXT NOT NULL, position TEXT NOT NULL
);
CREATE TABLE deletedItems (itemID INTEGER PRIMARY KEY);

INSERT INTO libraries VALUES (1, 'user'), (2, 'group');
INSERT INTO groups VALUES (4711, 2, 'Lab');
INSERT INTO itemTypes VALUES (1, 'journalArticle'), (2, 'attachment'), (3, 'annotation'), (4, 'note');
INSERT INTO items VALUES
	(1, 1, '2024-01-01 10:00:00', '2024-01-02 10:00:00', 1, 'ABCD1234'),
	(2, 2, '2024-01-01 10:00:00', '2024-01-01 10:00:00', 1, 'ATTACH01'),
	(3, 3, '2024-01-03 10:00:00', '2024-01-03 10:00:00', 1, 'ANNO0001'),
	(4, 3, '2024-01-03 11:00:00', '2024-01-03 11:00:00', 1, 'ANNO0002'),
	(5, 4, '2024-01-04 10:00:00', '2024-01-04 10:00:00', 1, 'NOTE0001'),
	(6, 1, '2024-02-01 10:00:00', '2024-02-01 10:00:00', 2, 'GRP00001'),
	(7, 1, '2024-03-01 10:00:00', '2024-03-01 10:00:00', 1, 'DELETED1');
INSERT INTO fields VALUES (1, 'title'), (2, 'DOI'), (3, 'date');
INSERT INTO itemDataValues VALUES (1, 'Attention Is All You Need'), (2, '10.1000/xyz'), (3, '2017'), (4, 'Group Paper');
INSERT INTO itemData VALUES (1, 1, 1), (1, 2, 2), (1, 3, 3), (6, 1, 4), (7, 1, 1);
INSERT INTO creators VALUES (1, 'Ashish', 'Vaswani', 0), (2, '', 'Google Brain', 1);
INSERT INTO creatorTypes VALUES (1, 'author'), (2, 'editor');
INSERT INTO itemCreators VALUES (1, 1, 1, 0), (1, 2, 1, 1);
INSERT INTO itemAttachments VALUES (2, 1, 'application/pdf');
INSERT INTO itemAnnotations VALUES
	(4, 2, 1, 'second passage', NULL, '#ffd400', '2', '00001|000200|00100', '{"pageIndex":1,"rects":[[1,2,3,4]]}'),
	(3, 2, 1, 'first passage', 'key idea', '#ff6666', '1', '00000|000100|00100', '{"pageIndex":0,"rects":[[1,2,3,4]]}');
INSERT INTO deletedItems VALUES (7);
`

// ZoteroLibrary writes a small Zotero database to a temp dir and returns its
// path.
func ZoteroLibrary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zotero.sqlite")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Exec(zoteroFixture); err != nil {
		t.Fatalf("zotero fixture: %v", err)
	}
	return path
}
