// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package bridge

// RPC method names. Stable across every class that exposes them.
const (
	MethodSettingsGet             = "settings-get"
	MethodSettingsSet             = "settings-set"
	MethodSettingsGetAll          = "settings-get-all"
	MethodSettingsReset           = "settings-reset"
	MethodSettingsClearCache      = "settings-clear-cache"
	MethodSettingsResetP2P        = "settings-reset-p2p"
	MethodSettingsUploadWallpaper = "settings-upload-wallpaper"
	MethodSettingsWallpaperURL    = "settings-get-wallpaper-url"
	MethodSettingsArchiveData     = "settings-get-archive-data"

	MethodExtList         = "extensions-list"
	MethodExtToggle       = "extensions-toggle"
	MethodExtInstall      = "extensions-install"
	MethodExtInstallStore = "extensions-install-webstore"
	MethodExtInstallBlob  = "extensions-install-upload"
	MethodExtUninstall    = "extensions-uninstall"
	MethodExtUnpin        = "extensions-unpin"
	MethodExtUpdateAll    = "extensions-update-all"
	MethodExtListActions  = "extensions-list-browser-actions"
	MethodExtClickAction  = "extensions-click-browser-action"
	MethodExtOpenPopup    = "extensions-open-browser-action-popup"
	MethodExtRegisterWV   = "extensions-register-webview"
	MethodExtUnregisterWV = "extensions-unregister-webview"

	MethodReadCSS        = "peersky-read-css"
	MethodGetBookmarks   = "get-bookmarks"
	MethodAddBookmark    = "add-bookmark"
	MethodDeleteBookmark = "delete-bookmark"

	MethodTabsInvoke = "tabs-invoke"

	MethodLLMChat     = "llm-chat"
	MethodLLMComplete = "llm-complete"
	MethodLLMStream   = "llm-stream"
	MethodLLMNext     = "llm-next"
	MethodLLMReturn   = "llm-return"
)

var settingsMethods = []string{
	MethodSettingsGet, MethodSettingsSet, MethodSettingsGetAll,
	MethodSettingsReset, MethodSettingsClearCache, MethodSettingsResetP2P,
	MethodSettingsUploadWallpaper, MethodSettingsWallpaperURL,
	MethodSettingsArchiveData,
}

var extensionMethods = []string{
	MethodExtList, MethodExtToggle, MethodExtInstall, MethodExtInstallStore,
	MethodExtInstallBlob, MethodExtUninstall, MethodExtUnpin,
	MethodExtUpdateAll, MethodExtListActions, MethodExtClickAction,
	MethodExtOpenPopup, MethodExtRegisterWV, MethodExtUnregisterWV,
}

var llmMethods = []string{
	MethodLLMChat, MethodLLMComplete, MethodLLMStream,
	MethodLLMNext, MethodLLMReturn,
}

// surfaces fixes the callable set per class. A method absent here is an
// undefined name for that class.
var surfaces = map[Class]map[string]bool{
	ClassSettings: methodSet(
		settingsMethods, extensionMethods, llmMethods,
		[]string{MethodReadCSS, MethodTabsInvoke, MethodGetBookmarks, MethodAddBookmark, MethodDeleteBookmark},
	),
	ClassExtensions: methodSet(
		extensionMethods,
		[]string{MethodSettingsGet},
	),
	ClassHome: methodSet([]string{
		MethodSettingsGet, MethodSettingsWallpaperURL,
		MethodExtListActions, MethodExtClickAction, MethodExtOpenPopup,
		MethodExtRegisterWV, MethodExtUnregisterWV,
	}),
	ClassBookmarks: methodSet([]string{
		MethodGetBookmarks, MethodAddBookmark, MethodDeleteBookmark,
	}),
	ClassTabs: methodSet([]string{
		MethodTabsInvoke,
	}),
	ClassInternal: methodSet([]string{
		MethodSettingsGet, MethodLLMComplete,
	}),
	ClassP2P:      methodSet(llmMethods),
	ClassExternal: methodSet(nil),
}

func methodSet(groups ...[]string) map[string]bool {
	out := make(map[string]bool)
	for _, group := range groups {
		for _, m := range group {
			out[m] = true
		}
	}
	return out
}

// settingsGetAllow restricts settings-get per class. A nil entry means
// every key; a present entry lists the only readable keys, in the order
// the denial message cites them.
var settingsGetAllow = map[Class][]string{
	ClassExtensions: {"theme"},
	ClassHome:       {"showClock", "wallpaper"},
	ClassInternal:   {"theme", "verticalTabs"},
}

// classLabel is how denial messages name each class.
var classLabel = map[Class]string{
	ClassSettings:   "Settings",
	ClassExtensions: "Extensions",
	ClassHome:       "Home",
	ClassBookmarks:  "Bookmarks",
	ClassTabs:       "Tabs",
	ClassInternal:   "Internal",
	ClassP2P:        "P2P",
	ClassExternal:   "External",
}

// Allows reports whether class may call method.
func Allows(class Class, method string) bool {
	return surfaces[class][method]
}

// Surface returns the callable method names for class.
func Surface(class Class) []string {
	out := make([]string, 0, len(surfaces[class]))
	for m := range surfaces[class] {
		out = append(out, m)
	}
	return out
}
