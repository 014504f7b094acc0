package mocks

//go:generate mockery --name RecordSink --srcpkg github.com/xyproto/mouselog/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
