package feupdate

import (
	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/updatebus"
)

const ModelUpdateStr = "model"

// UpdatePacket is anything that can travel on a ModelUpdateBus.
type UpdatePacket interface {
	UpdateType() string
	Clean()
}

// ModelUpdateItem is one entry of a ModelUpdate.
type ModelUpdateItem interface {
	// key used when marshalling and when the client interprets the item
	UpdateType() string
}

// CleanableUpdateItem is implemented by items holding fields that must not
// leave the server.
type CleanableUpdateItem interface {
	Clean()
}

// ModelUpdate is a batch of independent items evaluated in order on the
// client.
type ModelUpdate []ModelUpdateItem

func MakeModelUpdate(items ...ModelUpdateItem) *ModelUpdate {
	update := make(ModelUpdate, 0, len(items))
	update = append(update, items...)
	return &update
}

func (*ModelUpdate) UpdateType() string {
	return ModelUpdateStr
}

// Clean scrubs every cleanable item.
func (update *ModelUpdate) Clean() {
	if update == nil {
		return
	}
	for _, item := range *update {
		if i, ok := item.(CleanableUpdateItem); ok {
			i.Clean()
		}
	}
}

func (update *ModelUpdate) AddUpdate(items ...ModelUpdateItem) {
	*update = append(*update, items...)
}

func (update *ModelUpdate) IsEmpty() bool {
	return update == nil || len(*update) == 0
}

func (update *ModelUpdate) MarshalJSON() ([]byte, error) {
	rtn := make([]map[string]any, 0, len(*update))
	for _, item := range *update {
		rtn = append(rtn, map[string]any{item.UpdateType(): item})
	}
	return sonic.Marshal(rtn)
}

// GetUpdateItems returns the items of update that have type I.
func GetUpdateItems[I ModelUpdateItem](update *ModelUpdate) []I {
	var rtn []I
	for _, item := range *update {
		if i, ok := item.(I); ok {
			rtn = append(rtn, i)
		}
	}
	return rtn
}

// ModelUpdateChannel is a client's registration on the bus. An empty
// ScreenId subscribes to every scope.
type ModelUpdateChannel struct {
	ClientId string
	ScreenId string
	ch       chan UpdatePacket
}

func (uch *ModelUpdateChannel) GetChannel() chan UpdatePacket {
	return uch.ch
}

func (uch *ModelUpdateChannel) SetChannel(ch chan UpdatePacket) {
	uch.ch = ch
}

// Match reports whether an update scoped to screenId reaches this channel.
func (uch *ModelUpdateChannel) Match(screenId string) bool {
	if screenId == "" || uch.ScreenId == "" {
		return true
	}
	return screenId == uch.ScreenId
}

// ModelUpdateBus routes updates to client channels by screen scope.
type ModelUpdateBus struct {
	bus *updatebus.Bus[UpdatePacket]
}

func MakeModelUpdateBus(capacity int, logger *zap.Logger) *ModelUpdateBus {
	return &ModelUpdateBus{bus: updatebus.New[UpdatePacket]("model", capacity, logger)}
}

// SetOnDrop installs a drop observer, see updatebus.Bus.SetOnDrop.
func (bus *ModelUpdateBus) SetOnDrop(fn updatebus.DropFunc) {
	bus.bus.SetOnDrop(fn)
}

// RegisterChannel subscribes clientId to screenId, replacing any previous
// subscription of that client.
func (bus *ModelUpdateBus) RegisterChannel(clientId string, screenId string) chan UpdatePacket {
	uch := &ModelUpdateChannel{ClientId: clientId, ScreenId: screenId}
	return bus.bus.RegisterChannel(clientId, uch)
}

func (bus *ModelUpdateBus) UnregisterChannel(clientId string) {
	bus.bus.UnregisterChannel(clientId)
}

// UnregisterChannelIf removes clientId's registration only if it is still ch.
func (bus *ModelUpdateBus) UnregisterChannelIf(clientId string, ch chan UpdatePacket) bool {
	return bus.bus.UnregisterChannelIf(clientId, ch)
}

// SendUpdate broadcasts update to every client.
func (bus *ModelUpdateBus) SendUpdate(update UpdatePacket) {
	if update == nil {
		return
	}
	bus.bus.SendUpdate(update)
}

// SendScopedUpdate delivers update to clients watching screenId and to
// global subscribers. An empty screenId broadcasts.
func (bus *ModelUpdateBus) SendScopedUpdate(screenId string, update UpdatePacket) int {
	if update == nil {
		return 0
	}
	return bus.bus.SendMatching(screenId, update)
}

// SendToClient delivers update to a single client's channel.
func (bus *ModelUpdateBus) SendToClient(clientId string, update UpdatePacket) bool {
	if update == nil {
		return false
	}
	return bus.bus.SendToKey(clientId, update)
}

func (bus *ModelUpdateBus) IsRegistered(clientId string) bool {
	_, found := bus.bus.GetChannel(clientId)
	return found
}

func (bus *ModelUpdateBus) NumChannels() int {
	return bus.bus.NumChannels()
}

func (bus *ModelUpdateBus) Dropped() uint64 {
	return bus.bus.Dropped()
}

func (bus *ModelUpdateBus) Close() {
	bus.bus.Close()
}
