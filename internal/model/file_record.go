package model

import "time"

// FileRecord 对应 files 表，是上传文件的持久化登记。
// 知识库只通过 FileID 反向引用它，从不修改。
type FileRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	FileID      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"fileId"`
	UserID      string    `gorm:"type:varchar(64);index;not null" json:"userId"`
	StoragePath string    `gorm:"type:varchar(512);not null" json:"-"`
	ContentType string    `gorm:"type:varchar(128)" json:"contentType"`
	Filename    string    `gorm:"type:varchar(255);not null" json:"filename"`
	Size        int64     `gorm:"not null" json:"size"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileRecord) TableName() string {
	return "files"
}

// FileView 是返回给前端的文件信息。
type FileView struct {
	FileID      string    `json:"fileId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   LocalTime `json:"createdAt"`
}

// View 转换为前端视图。
func (f FileRecord) View() FileView {
	return FileView{
		FileID:      f.FileID,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
		CreatedAt:   LocalTime(f.CreatedAt),
	}
}
