package service

import (
	"encoding/json"
)

// SubscriptionDraw 单个订阅池的扣取/返还数量
type SubscriptionDraw struct {
	SubscriptionID int64 `json:"subscription_id"`
	Daily          int64 `json:"daily"`
	Monthly        int64 `json:"monthly"`
}

// DeductionProvenance 扣费来源明细（流水 metadata，v2 结构）。
// 退款按该明细把积分原路放回对应的池。
type DeductionProvenance struct {
	Version       int                `json:"version"`
	Purchased     int64              `json:"purchased"`
	Subscriptions []SubscriptionDraw `json:"subscriptions,omitempty"`
}

// Total 明细合计
func (p *DeductionProvenance) Total() int64 {
	total := p.Purchased
	for _, draw := range p.Subscriptions {
		total += draw.Daily + draw.Monthly
	}
	return total
}

// Encode 序列化为流水 metadata
func (p *DeductionProvenance) Encode() string {
	p.Version = 2
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// provenanceV1 早期版本的扁平结构：单订阅字段直接平铺在 metadata 里
type provenanceV1 struct {
	SubscriptionID int64 `json:"subscription_id"`
	Daily          int64 `json:"daily"`
	Monthly        int64 `json:"monthly"`
	Purchased      int64 `json:"purchased"`
}

// ParseProvenance 解析流水 metadata。只接受能明确识别的 v1/v2 结构，
// 识别不了就返回 false，调用方退回「全额返还到永久积分」的保底路径，
// 绝不对模糊数据做猜测。
func ParseProvenance(raw string) (*DeductionProvenance, bool) {
	if raw == "" {
		return nil, false
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, false
	}

	// v2：显式版本号 + 订阅列表
	if _, hasVersion := keys["version"]; hasVersion {
		var v2 DeductionProvenance
		if err := json.Unmarshal([]byte(raw), &v2); err != nil {
			return nil, false
		}
		if v2.Version != 2 || !validDraws(&v2) {
			return nil, false
		}
		return &v2, true
	}

	// v1：无版本号，订阅字段平铺
	_, hasSub := keys["subscription_id"]
	_, hasPurchased := keys["purchased"]
	if !hasSub && !hasPurchased {
		return nil, false
	}

	var v1 provenanceV1
	if err := json.Unmarshal([]byte(raw), &v1); err != nil {
		return nil, false
	}
	if v1.Daily < 0 || v1.Monthly < 0 || v1.Purchased < 0 {
		return nil, false
	}

	prov := &DeductionProvenance{Version: 2, Purchased: v1.Purchased}
	if v1.SubscriptionID != 0 {
		prov.Subscriptions = []SubscriptionDraw{{
			SubscriptionID: v1.SubscriptionID,
			Daily:          v1.Daily,
			Monthly:        v1.Monthly,
		}}
	}
	return prov, true
}

func validDraws(p *DeductionProvenance) bool {
	if p.Purchased < 0 {
		return false
	}
	for _, draw := range p.Subscriptions {
		if draw.SubscriptionID <= 0 || draw.Daily < 0 || draw.Monthly < 0 {
			return false
		}
	}
	return true
}

// RefundBreakdown 退款流水 metadata：记录退款实际落到了哪些池
type RefundBreakdown struct {
	SourceTransactionID int64              `json:"source_transaction_id,omitempty"`
	Purchased           int64              `json:"purchased"`
	Subscriptions       []SubscriptionDraw `json:"subscriptions,omitempty"`
}

// Encode 序列化为流水 metadata
func (b *RefundBreakdown) Encode() string {
	data, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return string(data)
}
