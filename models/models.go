// models/models.go - persistence records for users, files, charts, reports and chat
package models

import (
	"time"

	"github.com/twinj/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Chart kinds accepted by the API.
var ChartTypes = []string{"bar", "line", "pie", "doughnut", "scatter", "bubble", "radar", "polarArea"}

// Report template kinds accepted by the API.
var TemplateTypes = []string{"executive", "technical", "custom"}

const (
	MimeCSV  = "text/csv"
	MimeXLS  = "application/vnd.ms-excel"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Base carries the identity and timestamps shared by every record.
type Base struct {
	ID        string    `json:"_id" gorm:"primaryKey;column:id;size:36"`
	CreatedAt time.Time `json:"createdAt" gorm:"column:created_at;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"column:updated_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewV4().String()
	}
	return nil
}

type User struct {
	Base
	Username  string     `json:"username" gorm:"column:username;not null"`
	Email     string     `json:"email" gorm:"column:email;uniqueIndex;not null"`
	Password  string     `json:"-" gorm:"column:password;not null"`
	Role      string     `json:"role" gorm:"column:role;default:user"`
	IsActive  bool       `json:"isActive" gorm:"column:is_active;default:true"`
	LastLogin *time.Time `json:"lastLogin" gorm:"column:last_login"`
	Photo     string     `json:"photo" gorm:"column:photo;type:text"`
	Birthday  *time.Time `json:"birthday" gorm:"column:birthday"`
	Phone     string     `json:"phone" gorm:"column:phone"`
	Address   string     `json:"address" gorm:"column:address"`
	Sex       string     `json:"sex" gorm:"column:sex"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// FileUpload keeps the raw payload plus a lazily filled parse cache. ParsedAt
// marks the cache as filled, even when it holds no rows.
type FileUpload struct {
	Base
	UserID       string                      `json:"userId" gorm:"column:user_id;index;not null"`
	Filename     string                      `json:"filename" gorm:"column:filename"`
	OriginalName string                      `json:"originalName" gorm:"column:original_name"`
	FileType     string                      `json:"fileType" gorm:"column:file_type"`
	FileData     []byte                      `json:"-" gorm:"column:file_data"`
	Size         int64                       `json:"size" gorm:"column:size"`
	ParsedData   Rows                        `json:"parsedData" gorm:"column:parsed_data"`
	Columns      datatypes.JSONSlice[string] `json:"columns" gorm:"column:columns"`
	ParsedAt     *time.Time                  `json:"-" gorm:"column:parsed_at"`
}

// Chart holds a snapshot of its source file's rows taken at creation.
type Chart struct {
	Base
	UserID       string                      `json:"userId" gorm:"column:user_id;index;not null"`
	Title        string                      `json:"title" gorm:"column:title;not null"`
	Description  string                      `json:"description" gorm:"column:description;type:text"`
	FileID       string                      `json:"fileId" gorm:"column:file_id;index"`
	ChartType    string                      `json:"chartType" gorm:"column:chart_type"`
	XAxis        string                      `json:"xAxis" gorm:"column:x_axis"`
	YAxis        string                      `json:"yAxis" gorm:"column:y_axis"`
	GroupBy      string                      `json:"groupBy,omitempty" gorm:"column:group_by"`
	StyleOptions datatypes.JSONMap           `json:"styleOptions" gorm:"column:style_options"`
	Data         Rows                        `json:"data" gorm:"column:data"`
	Columns      datatypes.JSONSlice[string] `json:"columns" gorm:"column:columns"`
}

// Report is immutable once stored; PDFData is never serialized.
type Report struct {
	Base
	UserID         string                      `json:"userId" gorm:"column:user_id;index;not null"`
	Title          string                      `json:"title" gorm:"column:title;not null"`
	Description    string                      `json:"description" gorm:"column:description;type:text"`
	TemplateType   string                      `json:"templateType" gorm:"column:template_type"`
	FileIDs        datatypes.JSONSlice[string] `json:"files" gorm:"column:file_ids"`
	ChartIDs       datatypes.JSONSlice[string] `json:"charts" gorm:"column:chart_ids"`
	Content        datatypes.JSONMap           `json:"content" gorm:"column:content"`
	StylingOptions datatypes.JSONMap           `json:"stylingOptions" gorm:"column:styling_options"`
	PDFData        []byte                      `json:"-" gorm:"column:pdf_data"`
}

type Conversation struct {
	Base
	UserID      string                `json:"userId" gorm:"column:user_id;index;not null"`
	Messages    []ConversationMessage `json:"messages,omitempty" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
	LastUpdated time.Time             `json:"lastUpdated" gorm:"column:last_updated"`
}

type ConversationMessage struct {
	ID             uint      `json:"-" gorm:"primaryKey"`
	ConversationID string    `json:"-" gorm:"column:conversation_id;index;size:36"`
	Role           string    `json:"role" gorm:"column:role"`
	Content        string    `json:"content" gorm:"column:content;type:text"`
	Timestamp      time.Time `json:"timestamp" gorm:"column:timestamp"`
}

type Settings struct {
	Base
	UserID   string `json:"userId" gorm:"column:user_id;uniqueIndex;not null"`
	Theme    string `json:"theme" gorm:"column:theme;default:light"`
	Language string `json:"language" gorm:"column:language;default:en"`
}

// DashboardStats counts per-user activity; rows are upserted on user_id.
type DashboardStats struct {
	Base
	UserID         string    `json:"userId" gorm:"column:user_id;uniqueIndex;not null"`
	FilesUploaded  int64     `json:"filesUploaded" gorm:"column:files_uploaded;default:0"`
	ChartsCreated  int64     `json:"chartsCreated" gorm:"column:charts_created;default:0"`
	ReportsCreated int64     `json:"reportsCreated" gorm:"column:reports_created;default:0"`
	UserLogins     int64     `json:"userLogins" gorm:"column:user_logins;default:0"`
	LastUpdated    time.Time `json:"lastUpdated" gorm:"column:last_updated"`
}

func (User) TableName() string {
	return "users"
}

func (FileUpload) TableName() string {
	return "file_uploads"
}

func (Chart) TableName() string {
	return "charts"
}

func (Report) TableName() string {
	return "reports"
}

func (Conversation) TableName() string {
	return "conversations"
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

func (Settings) TableName() string {
	return "settings"
}

func (DashboardStats) TableName() string {
	return "dashboard_stats"
}

// All lists every model for migration.
func All() []any {
	return []any{
		&User{},
		&FileUpload{},
		&Chart{},
		&Report{},
		&Conversation{},
		&ConversationMessage{},
		&Settings{},
		&DashboardStats{},
	}
}
