package db

import (
	"time"
)

// Taxonomy maps cms.taxonomies.
type Taxonomy struct {
	Name       string    `gorm:"column:name;type:text;primaryKey"`
	ObjectType string    `gorm:"column:object_type;type:text;not null;default:post"`
	Label      string    `gorm:"column:label;type:text;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Taxonomy) TableName() string { return "cms.taxonomies" }

// Term maps cms.terms.
type Term struct {
	TermID    int64     `gorm:"column:term_id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;type:text;not null"`
	Slug      string    `gorm:"column:slug;type:text;not null;index"`
	TermGroup int64     `gorm:"column:term_group;type:bigint;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Term) TableName() string { return "cms.terms" }

// TermTaxonomy maps cms.term_taxonomy. Group and language rows keep their
// payload in Description.
type TermTaxonomy struct {
	TermTaxonomyID int64  `gorm:"column:term_taxonomy_id;primaryKey;autoIncrement"`
	TermID         int64  `gorm:"column:term_id;type:bigint;not null;uniqueIndex:term_taxonomy_term_taxonomy_key"`
	Taxonomy       string `gorm:"column:taxonomy;type:text;not null;uniqueIndex:term_taxonomy_term_taxonomy_key;index"`
	Description    string `gorm:"column:description;type:text;not null;default:''"`
	Parent         int64  `gorm:"column:parent;type:bigint;not null;default:0"`
	Count          int64  `gorm:"column:count;type:bigint;not null;default:0"`
}

func (TermTaxonomy) TableName() string { return "cms.term_taxonomy" }

// TermRelationship maps cms.term_relationships. ObjectID is a post ID or a
// term ID depending on the taxonomy of TermTaxonomyID.
type TermRelationship struct {
	ObjectID       int64 `gorm:"column:object_id;type:bigint;primaryKey"`
	TermTaxonomyID int64 `gorm:"column:term_taxonomy_id;type:bigint;primaryKey;index"`
	TermOrder      int   `gorm:"column:term_order;type:integer;not null;default:0"`
}

func (TermRelationship) TableName() string { return "cms.term_relationships" }

// Post maps cms.posts.
type Post struct {
	PostID    int64     `gorm:"column:post_id;primaryKey;autoIncrement"`
	Title     string    `gorm:"column:title;type:text;not null"`
	PostType  string    `gorm:"column:post_type;type:text;not null;default:post"`
	Status    string    `gorm:"column:status;type:text;not null;default:draft"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Post) TableName() string { return "cms.posts" }

// Option maps cms.options.
type Option struct {
	OptionName  string `gorm:"column:option_name;type:text;primaryKey"`
	OptionValue string `gorm:"column:option_value;type:jsonb;not null;default:'{}'"`
}

func (Option) TableName() string { return "cms.options" }

// User maps cms.users.
type User struct {
	UserID       int64      `gorm:"column:user_id;primaryKey;autoIncrement"`
	Username     string     `gorm:"column:username;type:text;not null;uniqueIndex"`
	PasswordHash string     `gorm:"column:password_hash;type:text;not null"`
	Role         string     `gorm:"column:role;type:text;not null;default:subscriber"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at;type:timestamptz"`
}

func (User) TableName() string { return "cms.users" }

// Session maps cms.sessions.
type Session struct {
	SessionID  string    `gorm:"column:session_id;type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID     int64     `gorm:"column:user_id;type:bigint;not null;index"`
	ExpiresAt  time.Time `gorm:"column:expires_at;type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;type:timestamptz;not null;default:now()"`
}

func (Session) TableName() string { return "cms.sessions" }

// SyncAudit maps cms.sync_audit.
type SyncAudit struct {
	AuditID      int64     `gorm:"column:audit_id;primaryKey;autoIncrement"`
	SyncType     string    `gorm:"column:sync_type;type:text;not null"`
	SourceID     int64     `gorm:"column:source_id;type:bigint;not null"`
	TargetID     int64     `gorm:"column:target_id;type:bigint;not null"`
	SourceLang   string    `gorm:"column:source_lang;type:text;not null;default:''"`
	TargetLang   string    `gorm:"column:target_lang;type:text;not null;default:''"`
	Taxonomy     string    `gorm:"column:taxonomy;type:text;not null;default:''"`
	GroupName    string    `gorm:"column:group_name;type:text;not null;default:''"`
	Success      bool      `gorm:"column:success;type:boolean;not null"`
	ErrorCode    string    `gorm:"column:error_code;type:text;not null;default:''"`
	ErrorMessage string    `gorm:"column:error_message;type:text;not null;default:''"`
	UserID       *int64    `gorm:"column:user_id;type:bigint"`
	ClientIP     string    `gorm:"column:client_ip;type:text;not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (SyncAudit) TableName() string { return "cms.sync_audit" }

func autoMigrateModels() []any {
	return []any{
		&Taxonomy{},
		&Term{},
		&TermTaxonomy{},
		&TermRelationship{},
		&Post{},
		&Option{},
		&User{},
		&Session{},
		&SyncAudit{},
	}
}
