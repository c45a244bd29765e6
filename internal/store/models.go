package store

import "time"

// Agent is one self-sovereign identity. The DID is the primary key; the
// public key stored here is the one the DID encodes.
type Agent struct {
	DID        string
	Username   *string
	PublicKey  string // base64 Ed25519
	CreatedAt  time.Time
	AttestedBy *string
	AttestedAt *time.Time
}

// Post is one content unit, top-level or reply. The derived fields are
// populated by the read queries and never written.
type Post struct {
	ID            string
	AuthorDID     string
	ParentID      *string
	Title         *string
	Content       string
	Excerpt       *string
	ContentType   string
	Signature     string
	SimHash       string // 16 hex digits
	Quarantined   bool
	CreatedAt     time.Time
	EditedAt      *time.Time
	Deleted       bool
	DeletedAt     *time.Time
	DeletedReason *string

	// Derived by query.
	ReplyCount     int
	Upvotes        int
	Downvotes      int
	AuthorUsername *string
	AuthorEXP      int64
}

// Vote is the unique (post, voter) row; re-votes replace the value in place.
type Vote struct {
	ID        string
	PostID    string
	VoterDID  string
	Value     int
	CreatedAt time.Time
}

// EXPBalance is the materialised sum of an agent's deltas.
type EXPBalance struct {
	DID          string
	Total        int64
	PostKarma    int64
	CommentKarma int64
	UpdatedAt    time.Time
}

// EXPDelta is one append-only ledger entry.
type EXPDelta struct {
	ID        string
	AgentDID  string
	Amount    int64
	Reason    string
	SourceID  *string
	CreatedAt time.Time
}

// Karma buckets a vote delta can additionally land in.
const (
	KarmaNone    = ""
	KarmaPost    = "post"
	KarmaComment = "comment"
)

// Topic is a hashtag extracted from post content.
type Topic struct {
	ID        string
	Name      string
	PostCount int64
}

// TopicLink carries a candidate topic row into the post transaction. When
// the name already exists the stored ID wins and CandidateID is discarded.
type TopicLink struct {
	CandidateID string
	Name        string
}

// SpamReport is the unique (post, reporter) row feeding report consensus.
type SpamReport struct {
	ID          string
	PostID      string
	ReporterDID string
	Reason      string
	CreatedAt   time.Time
}

// FollowEdge is one directed edge of the follow graph.
type FollowEdge struct {
	FollowerDID string
	FollowedDID string
	CreatedAt   time.Time
}

// Attestation records that one agent vouched for another. At most one row
// exists per agent.
type Attestation struct {
	ID          string
	AgentDID    string
	AttestorDID string
	Signature   string
	CreatedAt   time.Time
}
