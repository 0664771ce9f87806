package hdmx

// Port 矩阵端口号（1 起始）
type Port int

// Valid 是否落在 [1, max]
func (p Port) Valid(max int) bool { return p >= 1 && int(p) <= max }

func checkPort(field string, p Port, max int) error {
	if !p.Valid(max) {
		return &InvalidPortError{Field: field, Port: int(p), Max: max}
	}
	return nil
}

// Command 设备命令
// 仅本包内的具体类型实现该接口（args 未导出）
type Command interface {
	// Name 命令名称，用于日志、指标标签与错误信息
	Name() string
	// Code 命令码
	Code() Code
	// Validate 本地参数校验，不涉及设备
	Validate(maxPorts int) error
	// IsQuery 查询类命令的应答携带数据；设置类命令的应答为原帧回显
	IsQuery() bool

	args() (d0, d2 byte)
}

// SetBeep 开关按键蜂鸣
type SetBeep struct {
	Enabled bool
}

func (SetBeep) Name() string         { return "set_beep" }
func (SetBeep) Code() Code           { return CodeSetBeep }
func (SetBeep) Validate(int) error   { return nil }
func (SetBeep) IsQuery() bool        { return false }
func (c SetBeep) args() (byte, byte) { return switchValue(c.Enabled), 0 }

// SetPower 开关机
type SetPower struct {
	Enabled bool
}

func (SetPower) Name() string         { return "set_power" }
func (SetPower) Code() Code           { return CodeSetPower }
func (SetPower) Validate(int) error   { return nil }
func (SetPower) IsQuery() bool        { return false }
func (c SetPower) args() (byte, byte) { return switchValue(c.Enabled), 0 }

// ChangePort 将输入口路由到输出口
// 线序：d0=输入，d2=输出
type ChangePort struct {
	Output Port
	Input  Port
}

func (ChangePort) Name() string  { return "change_port" }
func (ChangePort) Code() Code    { return CodeChangePort }
func (ChangePort) IsQuery() bool { return false }

func (c ChangePort) Validate(maxPorts int) error {
	if err := checkPort("output", c.Output, maxPorts); err != nil {
		return err
	}
	return checkPort("input", c.Input, maxPorts)
}

func (c ChangePort) args() (byte, byte) { return byte(c.Input), byte(c.Output) }

// QueryStatus 查询输出口当前路由的输入口
type QueryStatus struct {
	Output Port
}

func (QueryStatus) Name() string  { return "query_status" }
func (QueryStatus) Code() Code    { return CodeQueryPort }
func (QueryStatus) IsQuery() bool { return true }

func (c QueryStatus) Validate(maxPorts int) error {
	return checkPort("output", c.Output, maxPorts)
}

func (c QueryStatus) args() (byte, byte) { return byte(c.Output), 0 }

// QueryBeep 查询蜂鸣器状态
type QueryBeep struct{}

func (QueryBeep) Name() string       { return "query_beep" }
func (QueryBeep) Code() Code         { return CodeQueryBeep }
func (QueryBeep) Validate(int) error { return nil }
func (QueryBeep) IsQuery() bool      { return true }
func (QueryBeep) args() (byte, byte) { return 0, 0 }

// QueryHPD 查询输出口热插拔检测电平
type QueryHPD struct {
	Output Port
}

func (QueryHPD) Name() string  { return "query_hpd" }
func (QueryHPD) Code() Code    { return CodeQueryHPD }
func (QueryHPD) IsQuery() bool { return true }

func (c QueryHPD) Validate(maxPorts int) error {
	return checkPort("output", c.Output, maxPorts)
}

func (c QueryHPD) args() (byte, byte) { return byte(c.Output), 0 }

// QueryCable 查询输入口线缆连接状态
type QueryCable struct {
	Input Port
}

func (QueryCable) Name() string  { return "query_cable" }
func (QueryCable) Code() Code    { return CodeQueryCable }
func (QueryCable) IsQuery() bool { return true }

func (c QueryCable) Validate(maxPorts int) error {
	return checkPort("input", c.Input, maxPorts)
}

func (c QueryCable) args() (byte, byte) { return byte(c.Input), 0 }

// SetEDID 设置单个输入口 EDID
// 线序：d0=EDID，d2=输入
type SetEDID struct {
	Input Port
	Value EDID
}

func (SetEDID) Name() string  { return "set_edid" }
func (SetEDID) Code() Code    { return CodeSetEDID }
func (SetEDID) IsQuery() bool { return false }

func (c SetEDID) Validate(maxPorts int) error {
	if err := checkPort("input", c.Input, maxPorts); err != nil {
		return err
	}
	if !c.Value.Valid() {
		return &InvalidEDIDError{Value: int(c.Value)}
	}
	return nil
}

func (c SetEDID) args() (byte, byte) { return byte(c.Value), byte(c.Input) }

// SetEDIDToAll 所有输入口设置同一 EDID
type SetEDIDToAll struct {
	Value EDID
}

func (SetEDIDToAll) Name() string  { return "set_edid_to_all" }
func (SetEDIDToAll) Code() Code    { return CodeSetEDIDToAll }
func (SetEDIDToAll) IsQuery() bool { return false }

func (c SetEDIDToAll) Validate(int) error {
	if !c.Value.Valid() {
		return &InvalidEDIDError{Value: int(c.Value)}
	}
	return nil
}

func (c SetEDIDToAll) args() (byte, byte) { return byte(c.Value), 0 }

// CopyEDID 将输出口显示器的 EDID 复制到输入口
// 线序：d0=输出，d2=输入
type CopyEDID struct {
	Output Port
	Input  Port
}

func (CopyEDID) Name() string  { return "copy_edid" }
func (CopyEDID) Code() Code    { return CodeCopyEDID }
func (CopyEDID) IsQuery() bool { return false }

func (c CopyEDID) Validate(maxPorts int) error {
	if err := checkPort("output", c.Output, maxPorts); err != nil {
		return err
	}
	return checkPort("input", c.Input, maxPorts)
}

func (c CopyEDID) args() (byte, byte) { return byte(c.Output), byte(c.Input) }

// CopyEDIDToAll 将输出口显示器的 EDID 复制到所有输入口
type CopyEDIDToAll struct {
	Output Port
}

func (CopyEDIDToAll) Name() string  { return "copy_edid_to_all" }
func (CopyEDIDToAll) Code() Code    { return CodeCopyEDIDToAll }
func (CopyEDIDToAll) IsQuery() bool { return false }

func (c CopyEDIDToAll) Validate(maxPorts int) error {
	return checkPort("output", c.Output, maxPorts)
}

func (c CopyEDIDToAll) args() (byte, byte) { return byte(c.Output), 0 }
