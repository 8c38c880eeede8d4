package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RequestUserCodeMessage] = (*RequestUserCodeCommand)(nil)
	_ gocmd.Commander[StoreAuthCodeMessage]   = (*StoreAuthCodeCommand)(nil)
	_ gocmd.Commander[RefreshTokenMessage]    = (*RefreshTokenCommand)(nil)
	_ gocmd.Commander[PollEventsMessage]      = (*PollEventsCommand)(nil)
	_ gocmd.Commander[PauseMessage]           = (*PauseCommand)(nil)
	_ gocmd.Commander[UnpauseMessage]         = (*UnpauseCommand)(nil)
	_ gocmd.Commander[OrderActionMessage]     = (*OrderActionCommand)(nil)
)
