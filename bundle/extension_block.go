package bundle

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/dtn7/cboring"
)

// ExtensionBlock is a specific shape of a Canonical Block, i.e., the Payload
// Block or a more generic Extension Block as defined in section 4.3.
type ExtensionBlock interface {
	cboring.CborMarshaler
	Valid

	// BlockTypeCode must return a constant integer, indicating the block type code.
	BlockTypeCode() uint64
}

// ExtensionBlockManager keeps a book on various types of ExtensionBlocks
// that can be registered and unregistered at runtime, so new ExtensionBlock
// implementations can be decoded from their block type code without this
// package knowing about them ahead of time. It is safe for concurrent use.
//
// A singleton ExtensionBlockManager can be fetched by GetExtensionBlockManager.
type ExtensionBlockManager struct {
	mu   sync.RWMutex
	data map[uint64]reflect.Type
}

// NewExtensionBlockManager creates an empty ExtensionBlockManager. To use a
// singleton ExtensionBlockManager one can use GetExtensionBlockManager.
func NewExtensionBlockManager() *ExtensionBlockManager {
	return &ExtensionBlockManager{data: make(map[uint64]reflect.Type)}
}

// Register a new ExtensionBlock type through an exemplary instance.
func (ebm *ExtensionBlockManager) Register(eb ExtensionBlock) error {
	extCode := eb.BlockTypeCode()
	extType := reflect.TypeOf(eb).Elem()

	ebm.mu.Lock()
	defer ebm.mu.Unlock()

	if otherType, exists := ebm.data[extCode]; exists {
		return fmt.Errorf("block type code %d is already registered for %s",
			extCode, otherType.Name())
	}

	ebm.data[extCode] = extType
	return nil
}

// Unregister an ExtensionBlock type through an exemplary instance.
func (ebm *ExtensionBlockManager) Unregister(eb ExtensionBlock) {
	ebm.mu.Lock()
	defer ebm.mu.Unlock()

	delete(ebm.data, eb.BlockTypeCode())
}

// CreateBlock returns an instance of the ExtensionBlock for the requested
// block type code.
func (ebm *ExtensionBlockManager) CreateBlock(typeCode uint64) (ExtensionBlock, error) {
	ebm.mu.RLock()
	extType, exists := ebm.data[typeCode]
	ebm.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no ExtensionBlock registered for block type code %d", typeCode)
	}

	return reflect.New(extType).Interface().(ExtensionBlock), nil
}

var (
	extensionBlockManagerOnce sync.Once
	extensionBlockManager     *ExtensionBlockManager
)

// GetExtensionBlockManager returns the singleton ExtensionBlockManager,
// pre-populated with this package's PayloadBlock, PreviousNodeBlock,
// BundleAgeBlock and HopCountBlock.
func GetExtensionBlockManager() *ExtensionBlockManager {
	extensionBlockManagerOnce.Do(func() {
		extensionBlockManager = NewExtensionBlockManager()

		for _, eb := range []ExtensionBlock{
			NewPayloadBlock(nil),
			NewPreviousNodeBlock(DtnNone()),
			NewBundleAgeBlock(0),
			NewHopCountBlock(0),
		} {
			_ = extensionBlockManager.Register(eb)
		}
	})

	return extensionBlockManager
}
