package dictionary

import "errors"

var (
	// ErrValidation indicates an entry is missing its word or correct spelling.
	ErrValidation = errors.New("dictionary: validation failed")
	// ErrEntryNotFound indicates the entry does not exist or belongs to another user.
	ErrEntryNotFound = errors.New("dictionary: entry not found")
)

// Entry maps a mis-transcribed spoken form to the spelling the user intends.
// Word is normalized to lowercase at creation time. Duplicate (word, user)
// pairs are permitted; entries are otherwise immutable once created.
type Entry struct {
	EntryID          string `gorm:"column:entry_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;size:190;not null;index:idx_dictionary_user_word,priority:1"`
	Word             string `gorm:"column:word;size:190;not null;index:idx_dictionary_user_word,priority:2"`
	CorrectSpelling  string `gorm:"column:correct_spelling;size:320;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "dictionary_entries"
}
