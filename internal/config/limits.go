package config

// MaxRoleHistoryEntries caps how many role changes one history request returns
const MaxRoleHistoryEntries = 100
