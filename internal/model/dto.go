package model

import "github.com/google/uuid"

// ========== Installation DTOs ==========

type RegisterInstallationRequest struct {
	ID     uuid.UUID `json:"id" binding:"required"`
	Name   string    `json:"name" binding:"required,min=1,max=100"`
	Desc   string    `json:"desc" binding:"max=500"`
	OS     string    `json:"os" binding:"max=50"`
	Client string    `json:"client" binding:"max=50"`
}

type RegisterPushTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// ========== Account DTOs ==========

type CreateAccountRequest struct {
	Name   string `json:"name" binding:"required,min=2,max=100"`
	Secret string `json:"secret" binding:"required,min=8"`
}

type ClaimPropertyRequest struct {
	Content string       `json:"content" binding:"required,max=255"`
	Type    PropertyType `json:"type" binding:"omitempty,oneof=email phone"`
	Scope   string       `json:"scope" binding:"required,oneof=claim verify"`
	Code    string       `json:"code" binding:"omitempty,len=6"`
}

type PropertyResponse struct {
	ID      uuid.UUID     `json:"id"`
	Content string        `json:"content"`
	Type    PropertyType  `json:"type"`
	State   PropertyState `json:"state"`
}

type RenameLinkRequest struct {
	LinkID uuid.UUID `json:"link_id" binding:"required"`
	Name   string    `json:"name" binding:"required,max=100"`
}

// ========== Auth Session DTOs ==========

type CreateSessionRequest struct {
	Unique string     `json:"unique" binding:"required"` // handle or verified primary property content
	Secret string     `json:"secret" binding:"required"`
	LinkID *uuid.UUID `json:"link_id,omitempty"`
}

type SessionResponse struct {
	SessionID    uuid.UUID        `json:"session_id"`
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	Account      Account          `json:"account"`
	Link         InstallationLink `json:"link"`
}

// ========== Media DTOs ==========

type SaveReceiptRequest struct {
	HasThumb *bool `json:"has_thumb"`
	HasFile  *bool `json:"has_file"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type FieldError struct {
	Field  string   `json:"field"`
	Errors []string `json:"errors"`
}

type ValidationErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
