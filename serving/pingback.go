package serving

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/jobs"
)

// 上报的行为
const (
	EventShow      = "show"
	EventClick     = "click"
	EventSubscribe = "subscribe"
)

// PingbackRequest 是一次曝光、点击或订阅变更上报。
type PingbackRequest struct {
	Event   string        `json:"event" validate:"required,oneof=show click subscribe"`
	UID     string        `json:"uid" validate:"required_without=UD,max=64"`
	UD      string        `json:"ud" validate:"max=128"`
	ItemID  string        `json:"item" validate:"required_unless=Event subscribe,max=64"`
	Type    core.ItemType `json:"type" validate:"max=32"`
	Keyword string        `json:"keyword" validate:"max=256"`
}

// Pingback 把上报转换为任务投递到队列，不等待处理结果。
//
// 规则：
//   - show / click 投递 pingback_show / pingback_click
//   - subscribe 投递 subscribe_changed，只接受 uid
//   - 没有任务队列时返回 UNAVAILABLE
func (f *Facade) Pingback(ctx context.Context, req PingbackRequest) error {
	if f.queue == nil {
		return core.NewDomainError(core.ModuleServing, core.ErrorCodeUnavailable, "serving: job queue not configured")
	}
	keyword := strings.TrimSpace(req.Keyword)

	var (
		name    string
		payload any
	)
	switch req.Event {
	case EventShow, EventClick:
		name = core.JobPingbackShow
		if req.Event == EventClick {
			name = core.JobPingbackClick
		}
		payload = jobs.PingbackPayload{UID: req.UID, UD: req.UD, ItemID: req.ItemID, Type: req.Type, Keyword: keyword}
	case EventSubscribe:
		if req.UID == "" {
			return core.NewDomainError(core.ModuleServing, core.ErrorCodeInvalidInput, "serving: subscribe requires uid")
		}
		name = core.JobSubscribeChanged
		payload = jobs.SubscribePayload{UID: req.UID, Keyword: keyword}
	default:
		return core.NewDomainError(core.ModuleServing, core.ErrorCodeInvalidInput, "serving: unknown event "+req.Event)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return core.WrapDomainError(core.ModuleServing, core.ErrorCodeInternalError, "serving: encode pingback", err)
	}
	job := core.Job{ID: uuid.NewString(), Name: name, Payload: raw}
	if err := f.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		return core.WrapDomainError(core.ModuleServing, core.ErrorCodeUnavailable, "serving: enqueue pingback", err)
	}
	return nil
}
