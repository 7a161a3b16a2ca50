package store

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

const (
	// PersonalNamespace is the namespace of an owner's private mailboxes.
	PersonalNamespace = "#private"

	// DefaultDelimiter separates the segments of a mailbox name.
	DefaultDelimiter = '/'
)

// MailboxID is the store-assigned persistent identifier of a mailbox.
type MailboxID string

// NewMailboxID generates a fresh random MailboxID.
func NewMailboxID() MailboxID {
	return MailboxID(uuid.NewString())
}

// ParseMailboxID interprets s as a persistent mailbox id.
// Returns ErrInvalidID if s is not a well-formed id.
func ParseMailboxID(s string) (MailboxID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return MailboxID(u.String()), nil
}

// String returns the id as a plain string.
func (id MailboxID) String() string {
	return string(id)
}

// EntityRef returns the type-qualified reference (e.g., "mailbox#uuid").
func (id MailboxID) EntityRef() string {
	return "mailbox#" + string(id)
}

// Key returns the primary key of the mailbox record.
func (id MailboxID) Key() PK {
	return PK{"id": &types.AttributeValueMemberS{Value: string(id)}}
}

// Session is the owner context a batch of mailbox operations runs under.
type Session struct {
	// User owns the mailboxes created in this session.
	User string

	// Namespace is the owner's namespace. Default: PersonalNamespace
	Namespace string

	// Delimiter separates name segments. Default: DefaultDelimiter
	Delimiter rune
}

// NewSession returns a personal-namespace session for user using the default delimiter.
func NewSession(user string) Session {
	return Session{
		User:      user,
		Namespace: PersonalNamespace,
		Delimiter: DefaultDelimiter,
	}
}

// PathDelimiter returns the session delimiter, falling back to DefaultDelimiter.
func (s Session) PathDelimiter() rune {
	if s.Delimiter == 0 {
		return DefaultDelimiter
	}
	return s.Delimiter
}

// Root returns the path of a top-level mailbox named name in the owner's namespace.
func (s Session) Root(name string) Path {
	namespace := s.Namespace
	if namespace == "" {
		namespace = PersonalNamespace
	}
	return Path{
		Namespace: namespace,
		User:      s.User,
		Name:      name,
		Delimiter: s.PathDelimiter(),
	}
}

// Path is the hierarchical address of a mailbox.
// Name is the full delimiter-joined name; no segment contains the delimiter.
type Path struct {
	Namespace string
	User      string
	Name      string
	Delimiter rune
}

func (p Path) delimiter() rune {
	if p.Delimiter == 0 {
		return DefaultDelimiter
	}
	return p.Delimiter
}

// Segments splits the name on the delimiter.
func (p Path) Segments() []string {
	return strings.Split(p.Name, string(p.delimiter()))
}

// Leaf returns the last name segment.
func (p Path) Leaf() string {
	if i := strings.LastIndex(p.Name, string(p.delimiter())); i >= 0 {
		return p.Name[i+utf8.RuneLen(p.delimiter()):]
	}
	return p.Name
}

// Parent returns the path one level up. ok is false for top-level mailboxes.
func (p Path) Parent() (parent Path, ok bool) {
	i := strings.LastIndex(p.Name, string(p.delimiter()))
	if i < 0 {
		return Path{}, false
	}
	parent = p
	parent.Name = p.Name[:i]
	return parent, true
}

// Child returns the path of segment directly under p.
func (p Path) Child(segment string) Path {
	child := p
	child.Name = p.Name + string(p.delimiter()) + segment
	return child
}

// String renders the path as namespace:user:name.
func (p Path) String() string {
	return p.Namespace + ":" + p.User + ":" + p.Name
}

// ValidatePath checks the name of p against the store naming rules.
// An empty name or an empty segment is ErrInvalidName; a name longer than
// maxLength runes is ErrNameTooLong.
func ValidatePath(p Path, maxLength int) error {
	if p.Name == "" {
		return fmt.Errorf("%w: the mailbox name is empty", ErrInvalidName)
	}
	if maxLength > 0 && utf8.RuneCountInString(p.Name) > maxLength {
		return fmt.Errorf("%w: '%s' exceeds %d characters", ErrNameTooLong, p.Name, maxLength)
	}
	for _, segment := range p.Segments() {
		if segment == "" {
			return fmt.Errorf("%w: '%s' has an empty segment", ErrInvalidName, p.Name)
		}
	}
	return nil
}

// Mailbox is a persisted mailbox as returned by the store.
type Mailbox struct {
	// ID is the persistent mailbox id.
	ID MailboxID

	// ParentID is the parent's id (empty for top-level mailboxes).
	ParentID MailboxID

	// Path is the resolved hierarchical path.
	Path Path

	// Version is incremented on every write.
	Version int64

	// CreatedAt is the ISO 8601 creation timestamp.
	CreatedAt string

	// UpdatedAt is the ISO 8601 last update timestamp.
	UpdatedAt string
}

// ChildRef represents a reference to a child mailbox in the relationship table.
type ChildRef struct {
	// ID is the child's mailbox id.
	ID MailboxID

	// Ref is the child's entity reference.
	Ref string

	// ShardPK is the relationship table partition key (for TTL updates).
	ShardPK string
}

// mailboxRecord is the DynamoDB shape of a mailbox.
type mailboxRecord struct {
	ID        string `dynamodbav:"id"`
	EntityRef string `dynamodbav:"entity_ref"`
	ParentID  string `dynamodbav:"parent_id,omitempty"`
	ParentRef string `dynamodbav:"parent_ref,omitempty"`
	Namespace string `dynamodbav:"namespace"`
	User      string `dynamodbav:"user"`
	Name      string `dynamodbav:"name"`
	Delimiter string `dynamodbav:"delimiter"`
	PathPK    string `dynamodbav:"path_pk"`
	Version   int64  `dynamodbav:"version"`
	CreatedAt string `dynamodbav:"created_at"`
	UpdatedAt string `dynamodbav:"updated_at"`
	TTL       int64  `dynamodbav:"ttl,omitempty"`
}

func (r mailboxRecord) toMailbox() *Mailbox {
	delimiter := DefaultDelimiter
	if d, _ := utf8.DecodeRuneInString(r.Delimiter); d != utf8.RuneError {
		delimiter = d
	}
	return &Mailbox{
		ID:       MailboxID(r.ID),
		ParentID: MailboxID(r.ParentID),
		Path: Path{
			Namespace: r.Namespace,
			User:      r.User,
			Name:      r.Name,
			Delimiter: delimiter,
		},
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// pathRecord is the DynamoDB shape of a path uniqueness record.
type pathRecord struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	MailboxID string `dynamodbav:"mailbox_id"`
	EntityRef string `dynamodbav:"entity_ref"`
	Namespace string `dynamodbav:"namespace"`
	User      string `dynamodbav:"user"`
	Name      string `dynamodbav:"name"`
	TTL       int64  `dynamodbav:"ttl,omitempty"`
}
