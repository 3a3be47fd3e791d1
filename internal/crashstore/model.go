package crashstore

import "time"

// Crash is the durable record of one crash descriptor: input bytes
// (stored as a blob on disk, referenced by hash) plus a termination-signal
// tag.
type Crash struct {
	ID               int       `gorm:"primaryKey;column:id"`
	CreatedAt        time.Time `gorm:"column:created_at;default:now()"`
	FuzzerIdentifier string    `gorm:"column:fuzzer_identifier;not null;index"`
	Signal           int       `gorm:"column:signal;not null"`
	MD5              string    `gorm:"column:md5;not null;uniqueIndex"`
	ByteLength       int       `gorm:"column:byte_length;not null"`
	BlobPath         string    `gorm:"column:blob_path;not null"`
}

func (Crash) TableName() string { return "crashes" }
