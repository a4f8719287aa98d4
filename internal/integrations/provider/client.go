package provider

import (
	"context"
)

type RejectReason string

const (
	ReasonAlreadyRegistered RejectReason = "ALREADY_REGISTERED"
	ReasonInvalidNumber     RejectReason = "INVALID_NUMBER"
	ReasonQuotaExceeded     RejectReason = "QUOTA_EXCEEDED"
	ReasonOther             RejectReason = "OTHER"
)

type RegisterItem struct {
	Number      string
	CarrierCode int // 0 = let the provider detect
}

type Accepted struct {
	Number      string
	CarrierCode int
}

type Rejected struct {
	Number  string
	Reason  RejectReason
	Code    int
	Message string
}

// RegisterResult separates accepted and rejected numbers. AlreadyRegistered
// numbers are reported as rejected with that reason; callers treat them as
// success that did not consume quota.
type RegisterResult struct {
	Accepted []Accepted
	Rejected []Rejected
}

type RawEvent struct {
	Time        string
	Location    string
	Description string
}

// RawTrack is the provider's view of one number. StatusCode is passed
// through untouched; Events are newest-first.
type RawTrack struct {
	Number      string
	CarrierCode int
	StatusCode  int
	Events      []RawEvent
}

type StatusResult struct {
	Tracks map[string]RawTrack
	Failed map[string]error
}

type Quota struct {
	Used  int
	Total int
}

type Client interface {
	Register(ctx context.Context, items []RegisterItem) (RegisterResult, error)
	FetchStatus(ctx context.Context, numbers []string) (StatusResult, error)
	FetchQuota(ctx context.Context) (Quota, error)
}
