package spam

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Admission actions for a new post.
type Action string

const (
	ActionPublish    Action = "PUBLISH"
	ActionQuarantine Action = "QUARANTINE"
	ActionReject     Action = "REJECT"
)

// Rejection and quarantine reasons surfaced to the caller.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonDuplicate       Reason = "duplicate"
	ReasonLowEntropy      Reason = "low_entropy"
	ReasonNewAccountSpam  Reason = "new_account_spam"
	ReasonPromptInjection Reason = "prompt_injection"
)

// duplicateWindow is how far back the near-duplicate check looks, and also
// the account age under which a duplicate rejects instead of quarantining.
const duplicateWindow = 24 * time.Hour

// Verdict is the combined decision of the three admission filters.
type Verdict struct {
	Action         Action
	Reason         Reason
	InjectionScore int
	Entropy        float64
	SimHash        uint64

	// Penalize marks verdicts that carry the -5 spam_detected delta: every
	// quarantine, and rejects other than prompt injection (whose content
	// never touches the ledger).
	Penalize bool
}

// RecentHashSource supplies the author's own recent simhashes for the
// duplicate check.
type RecentHashSource interface {
	RecentSimHashes(ctx context.Context, authorDID string, since time.Time) ([]uint64, error)
}

// Detector runs the admission filters in their canonical order: prompt
// injection, entropy floor, near-duplicate.
type Detector struct {
	recent RecentHashSource
	log    *logrus.Entry
	now    func() time.Time
}

// NewDetector builds a Detector reading recent hashes from source.
func NewDetector(source RecentHashSource, log *logrus.Entry) *Detector {
	return &Detector{recent: source, log: log, now: time.Now}
}

// EvaluatePost decides the admission action for content authored by a DID
// whose account was created at accountCreatedAt.
func (d *Detector) EvaluatePost(ctx context.Context, authorDID, content string, accountCreatedAt time.Time) (*Verdict, error) {
	verdict := &Verdict{
		Action:  ActionPublish,
		Entropy: ShannonEntropy(content),
		SimHash: SimHash(content),
	}

	injection := ScoreInjection(content)
	verdict.InjectionScore = injection.Score
	if injection.Rejects() {
		verdict.Action = ActionReject
		verdict.Reason = ReasonPromptInjection
		d.logVerdict(authorDID, verdict, injection.Patterns)
		return verdict, nil
	}

	if len([]rune(content)) >= minEntropyLength && verdict.Entropy < entropyFloor {
		verdict.Action = ActionReject
		verdict.Reason = ReasonLowEntropy
		verdict.Penalize = true
		d.logVerdict(authorDID, verdict, nil)
		return verdict, nil
	}

	since := d.now().Add(-duplicateWindow)
	hashes, err := d.recent.RecentSimHashes(ctx, authorDID, since)
	if err != nil {
		return nil, err
	}
	for _, h := range hashes {
		if !NearDuplicate(verdict.SimHash, h) {
			continue
		}
		if d.now().Sub(accountCreatedAt) < duplicateWindow {
			verdict.Action = ActionReject
			verdict.Reason = ReasonNewAccountSpam
		} else {
			verdict.Action = ActionQuarantine
			verdict.Reason = ReasonDuplicate
		}
		verdict.Penalize = true
		d.logVerdict(authorDID, verdict, nil)
		return verdict, nil
	}

	if injection.Flags() {
		verdict.Action = ActionQuarantine
		verdict.Reason = ReasonPromptInjection
		verdict.Penalize = true
		d.logVerdict(authorDID, verdict, injection.Patterns)
		return verdict, nil
	}

	return verdict, nil
}

// CheckEdit re-runs the prompt-injection filter for an edited body. Entropy
// and duplicate checks apply only at creation.
func (d *Detector) CheckEdit(content string) *Verdict {
	verdict := &Verdict{
		Action:  ActionPublish,
		Entropy: ShannonEntropy(content),
		SimHash: SimHash(content),
	}
	injection := ScoreInjection(content)
	verdict.InjectionScore = injection.Score
	switch {
	case injection.Rejects():
		verdict.Action = ActionReject
		verdict.Reason = ReasonPromptInjection
	case injection.Flags():
		verdict.Action = ActionQuarantine
		verdict.Reason = ReasonPromptInjection
	}
	return verdict
}

func (d *Detector) logVerdict(authorDID string, v *Verdict, patterns []string) {
	d.log.WithFields(logrus.Fields{
		"did":      authorDID,
		"action":   v.Action,
		"reason":   v.Reason,
		"score":    v.InjectionScore,
		"entropy":  v.Entropy,
		"patterns": patterns,
	}).Debug("spam filter verdict")
}
