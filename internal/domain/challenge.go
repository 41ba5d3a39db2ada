package domain

import "time"

type ChallengeType string

const (
	TypeStandard ChallengeType = "standard"
	TypeDynamic  ChallengeType = "dynamic"
)

const DefaultFlagType = "static"

type Challenge struct {
	ID          string
	Name        string
	Description string
	Category    string
	Value       int
	Type        ChallengeType
	Minimum     int
	Decay       int
	Tags        []string
	Flags       []Flag
	Files       []ChallengeFile
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Flag struct {
	Content string
	Type    string
}

// ChallengeFile is an attachment kept in storage under StorageID.
type ChallengeFile struct {
	StorageID    string
	OriginalName string
	ContentType  string
	Size         int64
	CreatedAt    time.Time
}
