package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
)

// ChangePortRequest 切换路由
type ChangePortRequest struct {
	Input *int `json:"input" binding:"required"`
}

// SwitchRequest 开关类命令
type SwitchRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// EDIDRequest 设置 EDID，value 可为编号或名称（如 "4k2k_7.1"）
type EDIDRequest struct {
	Value *EDIDValue `json:"value" binding:"required"`
}

// CopyEDIDRequest 复制 EDID 的来源输出口
type CopyEDIDRequest struct {
	Output *int `json:"output" binding:"required"`
}

// EDIDValue 接受数字或名称
type EDIDValue hdmx.EDID

func (v *EDIDValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		e, err := hdmx.ParseEDID(s)
		if err != nil {
			return err
		}
		*v = EDIDValue(e)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("edid value must be a number or a name: %w", err)
	}
	*v = EDIDValue(n)
	return nil
}
