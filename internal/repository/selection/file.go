package selection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// Selection is the contact and sensor chosen by the user.
type Selection struct {
	// Contact is the emergency contact; empty when none was chosen.
	Contact fall.EmergencyContact
	// Device is the sensor; nil when none was chosen.
	Device *fall.RemoteDevice
	// UpdatedAt is when the selection last changed.
	UpdatedAt time.Time
	// Actor is user@host of whoever changed it, when known.
	Actor string
}

// Clone returns a deep copy of the selection, or nil for a nil receiver.
func (s *Selection) Clone() *Selection {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.Device = s.Device.Clone()

	return &cloned
}

// Repository defines persistence operations for the selection.
type Repository interface {
	Load(ctx context.Context) (*Selection, error)
	Save(ctx context.Context, selection *Selection) error
}

// FileRepository persists the selection to a JSON file on disk.
// JSON is produced and consumed via protobuf JSON (protojson) over a Struct
// so the file matches what the control API returns for a device.
type FileRepository struct {
	// path is the filesystem location of the JSON selection file.
	path string
	// mu protects concurrent access to the selection file.
	mu sync.Mutex
}

// Keys of the persisted document.
const (
	keyContact   = "contact"
	keyDevice    = "device"
	keyUpdatedAt = "updated_at"
	keyActor     = "actor"
	keyName      = "name"
	keyAddress   = "address"
	keyChannel   = "channel"
	keyPath      = "path"
)

var (
	// ErrNotFound is returned when the selection file does not exist yet.
	ErrNotFound = errors.New("selection not found")

	// errNilSelection is returned when Save is called without a selection.
	errNilSelection = errors.New("selection is nil")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the selection from disk.
func (r *FileRepository) Load(_ context.Context) (*Selection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read selection file: %w", err)
	}

	var doc structpb.Struct
	if err = protojson.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode selection file: %w", err)
	}

	return fromStruct(&doc), nil
}

// Save writes the selection to disk, replacing the previous file atomically.
func (r *FileRepository) Save(_ context.Context, selection *Selection) error {
	if selection == nil {
		return errNilSelection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
	}

	data, err := marshalOptions.Marshal(toStruct(selection))
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write selection file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace selection file: %w", err)
	}

	return nil
}

// fromStruct converts the persisted document into a Selection.
func fromStruct(doc *structpb.Struct) *Selection {
	fields := doc.GetFields()
	result := &Selection{
		Contact: fall.EmergencyContact(fields[keyContact].GetStringValue()),
		Actor:   fields[keyActor].GetStringValue(),
	}

	if raw := fields[keyUpdatedAt].GetStringValue(); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			result.UpdatedAt = ts
		}
	}

	if device := fields[keyDevice].GetStructValue(); device != nil {
		df := device.GetFields()
		result.Device = &fall.RemoteDevice{
			Name:    df[keyName].GetStringValue(),
			Address: df[keyAddress].GetStringValue(),
			Channel: uint8(df[keyChannel].GetNumberValue()),
			Path:    df[keyPath].GetStringValue(),
		}
	}

	return result
}

// toStruct converts a Selection into the persisted document.
func toStruct(selection *Selection) *structpb.Struct {
	fields := map[string]*structpb.Value{
		keyContact: structpb.NewStringValue(selection.Contact.String()),
	}

	if !selection.UpdatedAt.IsZero() {
		fields[keyUpdatedAt] = structpb.NewStringValue(selection.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}

	if selection.Actor != "" {
		fields[keyActor] = structpb.NewStringValue(selection.Actor)
	}

	if d := selection.Device; d != nil {
		fields[keyDevice] = structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				keyName:    structpb.NewStringValue(d.Name),
				keyAddress: structpb.NewStringValue(d.Address),
				keyChannel: structpb.NewNumberValue(float64(d.Channel)),
				keyPath:    structpb.NewStringValue(d.Path),
			},
		})
	}

	return &structpb.Struct{Fields: fields}
}
