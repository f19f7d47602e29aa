package mocks

//go:generate mockery --name EventStore --srcpkg github.com/pulse-analytics/pulse/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name AlertStore --srcpkg github.com/pulse-analytics/pulse/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name GoalStore --srcpkg github.com/pulse-analytics/pulse/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
